// Package pty spawns interactive processes attached to a pseudo-terminal
// and exposes the terminal through capability-scoped views.
package pty

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

const (
	// DefaultCols is the initial terminal width when none is given.
	DefaultCols = 80

	// DefaultRows is the initial terminal height when none is given.
	DefaultRows = 24
)

// StartOptions contains options for starting a process on a PTY.
type StartOptions struct {
	// Command is the command line to execute. It is split into program
	// and arguments with basic quote handling.
	Command string

	// Env holds extra environment variables layered over the inherited
	// process environment.
	Env map[string]string

	// Dir is the working directory for the process. If empty, the
	// current directory is used.
	Dir string

	// InitialCols and InitialRows set the initial terminal size.
	// Zero values fall back to DefaultCols/DefaultRows.
	InitialCols uint16
	InitialRows uint16
}

// Process is a running process attached to a pseudo-terminal. The
// terminal is a single shared resource: the read and write views may be
// used concurrently by different goroutines, while Resize and Terminate
// are serialized on the process itself.
type Process struct {
	cmd *exec.Cmd
	tty *os.File

	mu     sync.Mutex
	closed bool
}

// Start spawns the command attached to a fresh PTY with the given
// initial size.
func Start(opts StartOptions) (*Process, error) {
	parts := splitCommand(opts.Command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	cols, rows := opts.InitialCols, opts.InitialRows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to start %q on pty: %w", parts[0], err)
	}

	p := &Process{cmd: cmd, tty: tty}

	// Reap the child so it does not linger as a zombie after Terminate.
	go p.cmd.Wait()

	return p, nil
}

// PID returns the process ID of the child.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Reader returns a read-only view of the terminal. The view does not
// own the terminal; closing happens through Terminate.
func (p *Process) Reader() io.Reader {
	return readerView{p}
}

// Writer returns a write-only view of the terminal.
func (p *Process) Writer() io.Writer {
	return writerView{p}
}

type readerView struct{ p *Process }

func (v readerView) Read(b []byte) (int, error) {
	return v.p.tty.Read(b)
}

type writerView struct{ p *Process }

func (v writerView) Write(b []byte) (int, error) {
	return v.p.tty.Write(b)
}

// Resize changes the terminal window size. Both views observe the new
// size since they alias the same terminal.
func (p *Process) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("process is closed")
	}
	if err := pty.Setsize(p.tty, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("failed to resize pty: %w", err)
	}
	return nil
}

// Terminate kills the child process and closes the terminal. It is
// idempotent; only the first call has an effect.
func (p *Process) Terminate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var firstErr error
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.tty.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// splitCommand splits a command string into program and arguments,
// honoring single and double quotes.
func splitCommand(cmd string) []string {
	var parts []string
	var current []rune
	inQuote := false
	quoteChar := rune(0)

	for _, r := range cmd {
		switch {
		case r == '"' || r == '\'':
			if inQuote {
				if r == quoteChar {
					inQuote = false
					quoteChar = 0
				} else {
					current = append(current, r)
				}
			} else {
				inQuote = true
				quoteChar = r
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current = append(current, r)
			} else if len(current) > 0 {
				parts = append(parts, string(current))
				current = nil
			}
		default:
			current = append(current, r)
		}
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}
