// Package session implements the per-connection terminal session: the
// bridge between one WebSocket client and one process spawned on a
// pseudo-terminal.
//
// A session runs three concurrent loops over a shared outbound queue
// and a shared terminal handle:
//   - the write loop, sole owner of the outbound half of the connection
//   - the read loop, decoding client frames into process input, resizes
//     and heartbeat replies
//   - the output loop, framing process output for the client
//
// The first loop to finish ends the session; the other two are
// abandoned and unblocked by tearing down the terminal and the
// connection. Queued-but-unsent frames may be lost on shutdown.
package session

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/webterm-bridge/server/internal/protocol"
	"github.com/webterm-bridge/server/internal/pty"
)

// readBufferSize bounds a single read of process output.
const readBufferSize = 1024

// Terminal environment advertised to the spawned process.
const (
	envTerm      = "xterm-256color"
	envColorTerm = "truecolor"
)

// Conn is the message-oriented, full-duplex connection a session
// drives. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetPingHandler(h func(appData string) error)
	Close() error
}

// Terminal is the spawned process handle. *pty.Process satisfies it.
// The Reader and Writer views alias one underlying terminal and may be
// used concurrently; Resize and Terminate act on the shared terminal.
type Terminal interface {
	Reader() io.Reader
	Writer() io.Writer
	Resize(cols, rows uint16) error
	Terminate() error
}

// State is the lifecycle state of a session.
type State int32

const (
	StateBootstrapping State = iota
	StateRunning
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds session bootstrap configuration.
type Config struct {
	// DefaultCommand is spawned when the client does not select a
	// command with a leading text message.
	DefaultCommand string
}

// Session bridges one connection to one process for their joint
// lifetime.
type Session struct {
	id   string
	conn Conn
	term Terminal
	out  *outbox
	log  *zap.SugaredLogger

	state atomic.Int32
	done  chan struct{}
}

// New bootstraps a session on an upgraded connection: it consumes the
// first inbound message to determine the command to run, spawns the
// process on a fresh PTY and returns the session ready to Run.
//
// Only a text first message selects a command. Any other first message,
// including a legitimate binary frame, is discarded and the default
// command is spawned; that frame's effect is lost. Clients must send
// the command selection first.
func New(conn Conn, cfg Config, log *zap.SugaredLogger) (*Session, error) {
	command := cfg.DefaultCommand
	if messageType, data, err := conn.ReadMessage(); err == nil && messageType == websocket.TextMessage {
		command = string(data)
	}

	opts := pty.StartOptions{
		Command: command,
		Env: map[string]string{
			"TERM":      envTerm,
			"COLORTERM": envColorTerm,
		},
	}
	if home, err := os.UserHomeDir(); err == nil {
		opts.Dir = home
	}

	proc, err := pty.Start(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %q: %w", command, err)
	}

	return newSession(conn, proc, log), nil
}

// newSession wires an already-spawned terminal to a connection.
func newSession(conn Conn, term Terminal, log *zap.SugaredLogger) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		term: term,
		out:  newOutbox(),
		done: make(chan struct{}),
	}
	s.log = log.With("session", s.id)

	// Transport-level liveness: answer pings through the outbound queue
	// so the write loop stays the only socket writer.
	conn.SetPingHandler(func(appData string) error {
		s.out.Push(websocket.PongMessage, []byte(appData))
		return nil
	})

	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done returns a channel closed when the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run drives the session until any of its three loops ends, then tears
// the whole session down. It blocks until the session is closed.
func (s *Session) Run() {
	s.state.Store(int32(StateRunning))
	s.log.Debugw("session running")

	results := make(chan error, 3)
	go func() { results <- s.writeLoop() }()
	go func() { results <- s.readLoop() }()
	go func() { results <- s.outputLoop() }()

	// First loop to finish wins; the losers are abandoned and unblock
	// as the terminal and connection close underneath them.
	err := <-results

	s.state.Store(int32(StateTerminating))
	if err != nil {
		s.log.Infow("session ending", "error", err)
	} else {
		s.log.Debugw("session ending")
	}

	if err := s.term.Terminate(); err != nil {
		s.log.Debugw("terminate failed", "error", err)
	}
	s.out.Close()
	if err := s.conn.Close(); err != nil {
		s.log.Debugw("connection close failed", "error", err)
	}

	s.state.Store(int32(StateClosed))
	close(s.done)
	s.log.Debugw("session closed")
}

// writeLoop drains the outbound queue onto the connection. It is the
// only goroutine that writes the socket. It ends when the queue closes
// or a transmit fails.
func (s *Session) writeLoop() error {
	for {
		msg, ok := s.out.Pop()
		if !ok {
			return nil
		}
		if err := s.conn.WriteMessage(msg.messageType, msg.data); err != nil {
			return fmt.Errorf("failed to send to client: %w", err)
		}
	}
}

// readLoop consumes inbound messages and applies their effect: input
// bytes to the process, resizes to the terminal, heartbeat replies to
// the outbound queue. It ends when the peer closes or a decode, write
// or resize error occurs.
func (s *Session) readLoop() error {
	w := s.term.Writer()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			// Peer closed or transport failure; either way the
			// session is over.
			return nil
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode inbound frame: %w", err)
		}

		switch frame.Kind {
		case protocol.KindInput:
			if len(frame.Payload) == 0 {
				continue
			}
			if _, err := w.Write(frame.Payload); err != nil {
				return fmt.Errorf("failed to write to pty: %w", err)
			}
		case protocol.KindResize:
			if err := s.term.Resize(frame.Cols, frame.Rows); err != nil {
				return fmt.Errorf("failed to resize pty: %w", err)
			}
			s.log.Debugw("resized terminal", "cols", frame.Cols, "rows", frame.Rows)
		case protocol.KindHeartbeat:
			s.out.Push(websocket.BinaryMessage, protocol.HeartbeatReply())
		}
	}
}

// outputLoop reads process output in bounded chunks and frames each
// one for the client. A zero-byte read (EOF) ends it normally: the
// process closed its output, typically because it exited.
func (s *Session) outputLoop() error {
	r := s.term.Reader()
	buf := make([]byte, readBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !s.out.Push(websocket.BinaryMessage, protocol.EncodeOutput(buf[:n])) {
				return fmt.Errorf("outbound queue closed")
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// A pty master read fails with EIO once the child exits;
			// it reaches teardown on the same path as any read failure.
			return fmt.Errorf("failed to read from pty: %w", err)
		}
	}
}
