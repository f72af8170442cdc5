package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// inMemoryPollInterval paces blocked readers while they wait for a publish.
const inMemoryPollInterval = 5 * time.Millisecond

type inMemoryMessage struct {
	id      string
	payload []byte
}

// InMemoryStream is the in-process MessageTransport used when no Redis URL
// is configured and in tests. Message IDs are "<n>-0" with n starting at 1,
// mirroring the shape (not the clock semantics) of Redis stream IDs.
type InMemoryStream struct {
	mu      sync.Mutex
	streams map[string][]inMemoryMessage
}

var _ MessageTransport = (*InMemoryStream)(nil)

func NewInMemoryStream() *InMemoryStream {
	return &InMemoryStream{streams: make(map[string][]inMemoryMessage)}
}

func (s *InMemoryStream) PublishJSON(_ context.Context, stream string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(s.streams[stream])+1)
	s.streams[stream] = append(s.streams[stream], inMemoryMessage{id: id, payload: payload})
	return id, nil
}

func (s *InMemoryStream) ReadJSON(ctx context.Context, stream string, lastID string, dst any) (string, error) {
	offset, err := parseStreamOffset(lastID)
	if err != nil {
		return "", err
	}

	for {
		s.mu.Lock()
		msgs := s.streams[stream]
		if offset < int64(len(msgs)) {
			msg := msgs[offset]
			s.mu.Unlock()
			if err := json.Unmarshal(msg.payload, dst); err != nil {
				return "", fmt.Errorf("unmarshal stream message %s: %w", msg.id, err)
			}
			return msg.id, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(inMemoryPollInterval):
		}
	}
}

// Close drops all buffered messages.
func (s *InMemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]inMemoryMessage)
	return nil
}

// Len reports how many messages a stream holds. Test helper.
func (s *InMemoryStream) Len(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[stream])
}
