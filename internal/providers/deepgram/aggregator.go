package deepgram

import (
	"strings"
	"sync"
)

// segment is one transcript message from the provider.
type segment struct {
	text  string
	final bool
}

// transcriptAggregator joins final segments, falling back to the last
// interim text when the stream closes before it is finalized.
type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(seg segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(seg.text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if seg.final {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	default:
		return joined
	}
}
