package whispercli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"voxscribe/internal/domain"
)

func TestTranscribeRunsCommandOnWAVFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, `#!/usr/bin/env bash
set -euo pipefail
echo "$@" > "`+argsFile+`"
while [ "$#" -gt 0 ]; do
  if [ "$1" = "-f" ]; then
    head -c 4 "$2" | grep -q RIFF || { echo "not a wav" >&2; exit 3; }
  fi
  shift
done
echo ""
echo "  hello there  "
echo "general kenobi"
`)

	tr := New(Config{Command: script, Model: "ggml-base.bin", Language: "en", TempDir: dir}, discardLogger())
	text, err := tr.Transcribe(context.Background(), sealedBuffer())
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello there general kenobi" {
		t.Fatalf("unexpected transcript %q", text)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(raw), "-m ggml-base.bin") || !strings.Contains(string(raw), "-l en") {
		t.Fatalf("unexpected args %q", raw)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "voxscribe-*.wav"))
	if len(leftovers) != 0 {
		t.Fatalf("expected temp wav removed, found %v", leftovers)
	}
}

func TestTranscribeWrapsCommandFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "#!/usr/bin/env bash\necho 'failed to load model' >&2\nexit 2\n")

	tr := New(Config{Command: script, Model: "missing.bin", TempDir: dir}, discardLogger())
	_, err := tr.Transcribe(context.Background(), sealedBuffer())
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestTranscribeHonorsTimeout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "#!/usr/bin/env bash\nexec sleep 5\n")

	tr := New(Config{Command: script, Model: "m.bin", TempDir: dir}, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := tr.Transcribe(ctx, sealedBuffer())
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestTranscribeRequiresModel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, discardLogger()).Transcribe(context.Background(), sealedBuffer())
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	got := commandArgs(Config{Model: "m.bin", Threads: 4}, "/tmp/a.wav")
	want := []string{"-m", "m.bin", "-f", "/tmp/a.wav", "-nt", "-np", "-t", "4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args: %v", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sealedBuffer() *domain.CaptureBuffer {
	buf := domain.NewCaptureBuffer(16000)
	_ = buf.Append(domain.AudioFrame{Samples: make([]int16, 480), SampleRate: 16000})
	buf.Seal()
	return buf
}

func writeScript(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "whisper.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
