package explorer

import (
	"context"
	"sync/atomic"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/resolver"
)

// Pass is a resolution pass running in the background.
type Pass struct {
	done    chan struct{}
	percent atomic.Int32
	result  resolver.Result
	err     error
}

// Done is closed when the pass finishes.
func (p *Pass) Done() <-chan struct{} { return p.done }

// Progress returns the last percentage reported.
func (p *Pass) Progress() int { return int(p.percent.Load()) }

// Wait blocks until the pass finishes or ctx is done. Cancelling ctx does
// not stop the pass; cancel the context given to RunResolutionPass for
// that.
func (p *Pass) Wait(ctx context.Context) (resolver.Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return resolver.Result{}, ctx.Err()
	}
}

// RunResolutionPass starts a resolution pass in the background and returns
// immediately. progress, when set, is called from the pass goroutine.
//
// Only one pass runs at a time: a second call while one is in flight fails
// with ErrBusy. The catalog stays locked until the pass finishes.
func (s *Session) RunResolutionPass(ctx context.Context, progress resolver.Progress) (*Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &catalog.Error{Code: catalog.ErrInvalidArgument, Message: "session is closed"}
	}
	if s.running != nil {
		select {
		case <-s.running.done:
		default:
			return nil, &catalog.Error{Code: catalog.ErrBusy, Message: "a resolution pass is already running"}
		}
	}

	p := &Pass{done: make(chan struct{})}
	s.running = p

	go func() {
		defer close(p.done)
		p.result, p.err = s.resolver.Run(ctx, func(percent int) {
			p.percent.Store(int32(percent))
			if progress != nil {
				progress(percent)
			}
		})
		if p.err == nil {
			_, _ = s.Status()
		}
	}()
	return p, nil
}

// Analyze runs a resolution pass and waits for it.
func (s *Session) Analyze(ctx context.Context, progress resolver.Progress) (resolver.Result, error) {
	p, err := s.RunResolutionPass(ctx, progress)
	if err != nil {
		return resolver.Result{}, err
	}
	<-p.done
	return p.result, p.err
}
