// Package listen supplies operator utterances to the session.
//
// A Listener blocks until one utterance is available. Loop drives a Listener
// forever, feeding each transcript through the session controller and
// retrying after transient failures.
package listen

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/session"
)

// Listener errors.
var (
	ErrClosed = errors.New("listen: listener closed")
)

// Listener yields transcribed utterances.
type Listener interface {
	// Listen blocks until an utterance is recognized. The text may be
	// empty when nothing intelligible was heard.
	Listen(ctx context.Context) (string, error)
}

// Normalize lowercases and trims a transcript.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// LineListener treats each line of a reader as one utterance.
type LineListener struct {
	r         io.Reader
	once      sync.Once
	closeOnce sync.Once
	lines     chan string
	done      chan struct{}
	err       error
}

// NewLineListener reads utterances from r, typically stdin.
func NewLineListener(r io.Reader) *LineListener {
	return &LineListener{r: r, lines: make(chan string), done: make(chan struct{})}
}

func (l *LineListener) start() {
	go func() {
		defer close(l.lines)
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			select {
			case l.lines <- sc.Text():
			case <-l.done:
				l.err = ErrClosed
				return
			}
		}
		l.err = sc.Err()
		if l.err == nil {
			l.err = io.EOF
		}
	}()
}

// Listen returns the next line, or io.EOF once the reader is exhausted.
// After Close it returns ErrClosed.
func (l *LineListener) Listen(ctx context.Context) (string, error) {
	l.once.Do(l.start)

	select {
	case <-l.done:
		return "", ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrClosed
	case line, ok := <-l.lines:
		if !ok {
			return "", l.err
		}
		return Normalize(line), nil
	}
}

// Close stops delivering lines. The underlying reader is not closed; a
// reader blocked in Read keeps its goroutine until the read returns.
func (l *LineListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// DefaultRetryDelay is the pause after a failed listen.
const DefaultRetryDelay = 500 * time.Millisecond

// Loop feeds a Listener into a session until the session ends, the context
// is cancelled, or the listener reports io.EOF or ErrClosed.
type Loop struct {
	Listener    Listener
	Session     *session.Controller
	Interpreter *command.Interpreter
	Logger      *slog.Logger
	RetryDelay  time.Duration

	// OnCommand, if set, is called after every utterance that produced actions.
	OnCommand func(utterance string, actions []command.Action)
}

// Run blocks until the loop ends. It returns nil on session shutdown or
// end of input, and the context error on cancellation.
func (lp *Loop) Run(ctx context.Context) error {
	logger := lp.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "listen")

	delay := lp.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lp.Session.Done():
			return nil
		default:
		}

		text, err := lp.Listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				logger.Info("input closed")
				return nil
			}
			failures++
			logger.Warn("listen failed", "error", err, "failures", failures)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		failures = 0

		text = Normalize(text)
		if text == "" {
			continue
		}
		logger.Debug("heard", "text", text)

		actions := lp.Session.Handle(text, lp.Interpreter)
		if len(actions) > 0 && lp.OnCommand != nil {
			lp.OnCommand(text, actions)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
