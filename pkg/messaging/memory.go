package messaging

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBroker is an in-process broker. It keeps every published envelope
// so local runs and tests can inspect what was emitted.
type MemoryBroker struct {
	mu          sync.Mutex
	published   []Published
	subscribers map[string][]chan []byte
	closed      bool
}

// Published is one recorded publish call.
type Published struct {
	Channel string
	Message Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subscribers: make(map[string][]chan []byte)}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload interface{}) error {
	msg := Message{Type: channel, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, Published{Channel: channel, Message: msg})
	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[channel]
		for i, c := range subs {
			if c == ch {
				b.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// Published returns the messages sent to channel, or all when channel is "".
func (b *MemoryBroker) Published(channel string) []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Published
	for _, p := range b.published {
		if channel == "" || p.Channel == channel {
			out = append(out, p)
		}
	}
	return out
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
