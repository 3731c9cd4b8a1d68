package editor

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopClosed = errors.New("editor loop closed")

// Loop serializes all access to one Editor on a single goroutine.
type Loop struct {
	ed   *Editor
	ops  chan func(*Editor)
	done chan struct{}
	once sync.Once
}

// NewLoop starts the goroutine owning ed. Image loads finishing in the
// background are routed back onto the loop.
func NewLoop(ed *Editor) *Loop {
	l := &Loop{
		ed:   ed,
		ops:  make(chan func(*Editor), 64),
		done: make(chan struct{}),
	}
	ed.Compositor().Images().OnLoaded(func(ref string) {
		l.Post(func(e *Editor) { e.ImageLoaded(ref) })
	})
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case op := <-l.ops:
			if l.closed() {
				return
			}
			op(l.ed)
		case <-l.done:
			return
		}
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*Editor) error) error {
	if l.closed() {
		return ErrLoopClosed
	}
	errc := make(chan error, 1)
	op := func(e *Editor) { errc <- fn(e) }
	select {
	case l.ops <- op:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. It reports false once the loop is closed.
func (l *Loop) Post(fn func(*Editor)) bool {
	if l.closed() {
		return false
	}
	select {
	case l.ops <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop. Queued operations that have not started are dropped,
// even when the loop picks them up after Close.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
