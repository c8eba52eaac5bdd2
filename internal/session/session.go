// Package session holds the interpreter state of one evaluation connection.
//
// A Session owns exactly one Environment for its whole life. Nothing outside
// the connection handler that created it holds a reference, so two sessions
// never see each other's bindings.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codefionn/ronkey/internal/interp"
	"github.com/codefionn/ronkey/internal/monkey/ast"
	"github.com/codefionn/ronkey/internal/monkey/object"
	"github.com/google/uuid"
)

// ErrClosed is returned by Eval once the session has been closed
var ErrClosed = errors.New("session closed")

// Session is the per-connection unit of interpreter state
type Session struct {
	ID        string
	CreatedAt time.Time

	runtime interp.Runtime

	// mu guards env. It is held only for the duration of a runtime call and
	// never across network I/O.
	mu        sync.Mutex
	env       *object.Environment
	closed    bool
	evalCount int
}

// New creates a session with a freshly constructed environment
func New(runtime interp.Runtime) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		runtime:   runtime,
		env:       runtime.NewEnvironment(),
	}
}

// Eval evaluates program against the session environment and returns the
// display string of the result. In-language error values are returned as
// ordinary display strings.
func (s *Session) Eval(ctx context.Context, program *ast.Program) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	result := s.runtime.Eval(ctx, program, s.env)
	s.evalCount++

	if result == nil {
		return "null", nil
	}
	return result.Inspect(), nil
}

// Age is the time since the session was created
func (s *Session) Age() time.Duration {
	return time.Since(s.CreatedAt)
}

// Close drops the environment. Further Eval calls fail with ErrClosed.
// Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.env = nil
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// EvalCount returns how many evaluations reached the runtime
func (s *Session) EvalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evalCount
}

// Bindings returns the names bound at the top level of the environment
func (s *Session) Bindings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.env == nil {
		return nil
	}
	return s.env.Names()
}
