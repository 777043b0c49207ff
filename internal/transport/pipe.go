package transport

import (
	"context"
	"sync"
)

// PipeEnd is one side of an in-memory link created by NewPipe. Send on one
// end invokes the other end's handler on the sending goroutine.
type PipeEnd struct {
	mu      sync.Mutex
	open    bool
	handler func([]byte)
	peer    *PipeEnd
}

// NewPipe returns two connected, open ends.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{open: true}
	b := &PipeEnd{open: true}
	a.peer, b.peer = b, a
	return a, b
}

// Send delivers a copy of frame to the peer's handler. Frames sent while the
// peer has no handler are dropped, as a radio link would.
func (p *PipeEnd) Send(frame []byte) error {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if !open {
		return ErrNotLinked
	}

	p.peer.mu.Lock()
	fn := p.peer.handler
	p.peer.mu.Unlock()
	if fn != nil {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		fn(buf)
	}
	return nil
}

// OnReceive registers the handler for frames sent by the peer.
func (p *PipeEnd) OnReceive(fn func([]byte)) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// Open marks the end as linked again after Close.
func (p *PipeEnd) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
	return nil
}

// Close marks the end unlinked; later Sends fail with ErrNotLinked.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	return nil
}
