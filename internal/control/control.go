// Package control turns external activation sources (command lines and
// signals) into orchestrator calls.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
)

// Command is one activation request.
type Command string

const (
	CommandActivate   Command = "activate"
	CommandDeactivate Command = "deactivate"
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandQuit       Command = "quit"
)

// Target receives parsed commands.
type Target interface {
	Activate() error
	Deactivate() error
	Stop() error
	Cancel() error
}

// ParseCommand accepts one line; blank lines and # comments yield ok=false.
func ParseCommand(line string) (Command, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false, nil
	}
	switch cmd := Command(strings.ToLower(line)); cmd {
	case CommandActivate, CommandDeactivate, CommandToggle, CommandStop, CommandCancel, CommandQuit:
		return cmd, true, nil
	case "press":
		return CommandActivate, true, nil
	case "release":
		return CommandDeactivate, true, nil
	case "exit":
		return CommandQuit, true, nil
	default:
		return "", false, fmt.Errorf("unknown command %q", line)
	}
}

// CommandForSignal maps SIGUSR1 to activate and SIGUSR2 to deactivate.
func CommandForSignal(sig os.Signal) (Command, bool) {
	switch sig {
	case syscall.SIGUSR1:
		return CommandActivate, true
	case syscall.SIGUSR2:
		return CommandDeactivate, true
	default:
		return "", false
	}
}

// Apply forwards cmd to target. Quit is reported back to the caller.
func Apply(target Target, cmd Command) (quit bool, err error) {
	switch cmd {
	case CommandActivate, CommandToggle:
		return false, target.Activate()
	case CommandDeactivate:
		return false, target.Deactivate()
	case CommandStop:
		return false, target.Stop()
	case CommandCancel:
		return false, target.Cancel()
	case CommandQuit:
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
}

// Reader consumes newline-delimited commands from a stream.
type Reader struct {
	target Target
	logger *slog.Logger
}

func NewReader(target Target, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{target: target, logger: logger}
}

// Serve reads until EOF, quit, or a target error. Unknown lines are logged
// and skipped. It returns io.EOF when the input ends and nil on quit.
func (r *Reader) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cmd, ok, err := ParseCommand(scanner.Text())
		if err != nil {
			r.logger.Warn("control.command_rejected", "error", err)
			continue
		}
		if !ok {
			continue
		}
		r.logger.Debug("control.command", "command", string(cmd))
		quit, err := Apply(r.target, cmd)
		if err != nil {
			return fmt.Errorf("apply %s: %w", cmd, err)
		}
		if quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return io.EOF
}
