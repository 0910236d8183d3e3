package usecase

import (
	"sync"

	"voxscribe/internal/domain"
	"voxscribe/internal/vad"
)

// event is one queued input to the control loop.
type event struct {
	trigger trigger
	gen     uint64
	text    string
	err     error
	reply   chan struct{}
}

// eventQueue is an unbounded FIFO. push never blocks, so listener and
// capture callbacks can post while the control loop is waiting on them.
type eventQueue struct {
	mu     sync.Mutex
	items  []event
	closed bool
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return event{}, false
	}
	ev := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return ev, true
}

// close rejects further pushes and returns whatever was still pending.
func (q *eventQueue) close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	pending := q.items
	q.items = nil
	return pending
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// utteranceTracker watches a recording for the end of an utterance: once
// speech has been heard, needed consecutive non-speech frames end it.
// It is only touched from the capture pump goroutine.
type utteranceTracker struct {
	detector vad.Classifier
	silence  int
	needed   int
	heard    bool
	fired    bool
}

func newUtteranceTracker(detector vad.Classifier, silenceFrames int) *utteranceTracker {
	if detector == nil || silenceFrames <= 0 {
		return nil
	}
	return &utteranceTracker{detector: detector, needed: silenceFrames}
}

// observe returns true exactly once, on the frame that completes the
// trailing silence.
func (u *utteranceTracker) observe(frame domain.AudioFrame) bool {
	if u == nil || u.fired {
		return false
	}
	speech, err := u.detector.Classify(frame)
	if err != nil {
		return false
	}
	if speech {
		u.heard = true
		u.silence = 0
		return false
	}
	if !u.heard {
		return false
	}
	u.silence++
	if u.silence >= u.needed {
		u.fired = true
		return true
	}
	return false
}
