package gateway

import (
	"context"
)

// Call is a request running in its own goroutine. It can be cancelled by the caller which makes it
// fail with [KindCancelled].
type Call struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Go sends the request in a goroutine and returns immediately. out must not be read before the call
// is done.
func (c *Client) Go(ctx context.Context, req Request, out any) *Call {
	ctx, cancel := context.WithCancel(ctx)
	call := &Call{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(call.done)
		defer cancel()
		call.err = c.Do(ctx, req, out)
	}()

	return call
}

// Cancel aborts the call. Cancelling a call which is done has no effect.
func (c *Call) Cancel() {
	c.cancel()
}

// Done is closed once the call is done.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the error of the call once it's done. It returns nil while the call is running.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call is done and returns its error.
func (c *Call) Wait() error {
	<-c.done
	return c.err
}
