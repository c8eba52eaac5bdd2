package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/ronkey/internal/interp"
	"github.com/codefionn/ronkey/internal/logger"
	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/codefionn/ronkey/internal/session"
)

// FrameWriter sends one outbound text frame
type FrameWriter interface {
	WriteFrame(data []byte) error
}

// Processor runs the parse, evaluate, encode pipeline for one inbound
// message at a time. It holds no per-session state.
type Processor struct {
	frontend    interp.Frontend
	evalTimeout time.Duration
	log         *logger.Logger
}

// NewProcessor creates a processor. An evalTimeout of 0 leaves evaluation
// unbounded.
func NewProcessor(frontend interp.Frontend, evalTimeout time.Duration, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Global()
	}
	return &Processor{
		frontend:    frontend,
		evalTimeout: evalTimeout,
		log:         log,
	}
}

// Process maps source to exactly one Response. Syntax errors are reported
// without touching the session.
func (p *Processor) Process(ctx context.Context, sess *session.Session, source string) protocol.Response {
	program, errs := p.frontend.Parse(source)
	if len(errs) > 0 {
		return protocol.Err(errs)
	}
	if program == nil {
		return protocol.Err([]string{"parser returned no program"})
	}

	if p.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.evalTimeout)
		defer cancel()
	}

	start := time.Now()
	display, err := sess.Eval(ctx, program)
	if err != nil {
		if !errors.Is(err, session.ErrClosed) {
			p.log.Warn("Evaluation in session %s failed: %v", sess.ID, err)
		}
		return protocol.Err([]string{err.Error()})
	}
	p.log.Debug("Session %s evaluated %d statements in %s", sess.ID, len(program.Statements), time.Since(start))

	return protocol.OK(display)
}

// Respond processes source and writes exactly one frame to w. The returned
// error is a transport error; the session stays usable after syntax errors.
func (p *Processor) Respond(ctx context.Context, w FrameWriter, sess *session.Session, source string) error {
	data, err := protocol.Encode(p.Process(ctx, sess, source))
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := w.WriteFrame(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
