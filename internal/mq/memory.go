package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

// ErrQueueFull is returned by MemoryBackend.Publish when a channel already
// holds memoryBuffer undelivered messages.
var ErrQueueFull = errors.New("memory queue full")

// MemoryBackend delivers messages between goroutines of one process.
// Messages published before anyone subscribes are buffered per channel.
type MemoryBackend struct {
	mu       sync.Mutex
	channels map[string]chan Message
	closed   bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{channels: make(map[string]chan Message)}
}

func (b *MemoryBackend) queue(channel string) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("memory backend closed")
	}
	q, ok := b.channels[channel]
	if !ok {
		q = make(chan Message, memoryBuffer)
		b.channels[channel] = q
	}
	return q, nil
}

// Publish enqueues a message. It never waits for a subscriber: a full
// channel buffer fails with ErrQueueFull.
func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q, err := b.queue(channel)
	if err != nil {
		return "", err
	}
	msg := Message{
		ID:         uuid.NewString(),
		Data:       append([]byte(nil), data...),
		Attributes: attrs,
	}
	select {
	case q <- msg:
		return msg.ID, nil
	default:
		return "", fmt.Errorf("channel %s: %w", channel, ErrQueueFull)
	}
}

// Subscribe handles messages until ctx ends. A failed message is requeued.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := b.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

// Close rejects further publishes and subscriptions. Running subscribers
// stop when their context ends.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
