package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemoryStream is the in-process fallback transport used when no Redis URL
// is configured. Messages are retained in order per stream for inspection.
type InMemoryStream struct {
	mu       sync.Mutex
	messages map[string][]json.RawMessage
}

func NewInMemoryStream() *InMemoryStream {
	return &InMemoryStream{messages: make(map[string][]json.RawMessage)}
}

func (s *InMemoryStream) Publish(ctx context.Context, stream string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[stream] = append(s.messages[stream], raw)
	return nil
}

// Messages returns the payloads published to stream, in publish order.
func (s *InMemoryStream) Messages(stream string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.messages[stream]))
	copy(out, s.messages[stream])
	return out
}

func (s *InMemoryStream) Close() error {
	return nil
}
