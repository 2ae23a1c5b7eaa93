package notify

import (
	"context"
	"fmt"
	"sync"
)

// ChannelPublisher buffers notifications on an in-process channel for a
// collaborator running in the same process to drain.
type ChannelPublisher struct {
	mu     sync.RWMutex
	ch     chan AnomalyNotification
	closed bool
}

// NewChannelPublisher creates a channel-backed publisher.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelPublisher{
		ch: make(chan AnomalyNotification, bufferSize),
	}
}

// Publish enqueues a notification. Non-blocking: when the buffer is full
// the oldest consumer lag shows up as an error rather than a stalled scan.
func (p *ChannelPublisher) Publish(ctx context.Context, n AnomalyNotification) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	select {
	case p.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("notification buffer full")
	}
}

// Notifications returns the channel consumers drain.
func (p *ChannelPublisher) Notifications() <-chan AnomalyNotification {
	return p.ch
}

// Close closes the publisher and its channel.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.ch)
	return nil
}
