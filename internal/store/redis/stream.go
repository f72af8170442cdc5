package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// streamMaxLen bounds each stream; XADD trims with MAXLEN ~ so Redis
	// never grows unbounded when no consumer is attached.
	streamMaxLen = 10_000

	// readBlockInterval is how long a single XREAD blocks server-side
	// before ReadJSON re-checks its context.
	readBlockInterval = 2 * time.Second
)

// MessageTransport abstracts a Redis-stream-like message log so the daemon
// can run without Redis and tests can observe published events.
type MessageTransport interface {
	// PublishJSON appends v (JSON-encoded) to the stream and returns the
	// assigned message ID.
	PublishJSON(ctx context.Context, stream string, v any) (string, error)

	// ReadJSON blocks until a message newer than lastID is available,
	// decodes it into dst, and returns the message ID to resume from.
	// Pass "0" (or "") to read from the beginning.
	ReadJSON(ctx context.Context, stream string, lastID string, dst any) (string, error)

	Close() error
}

// Stream is the Redis-backed MessageTransport.
type Stream struct {
	client *redis.Client
}

var _ MessageTransport = (*Stream)(nil)

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client}, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

func (s *Stream) Client() *redis.Client {
	return s.client
}

func (s *Stream) PublishJSON(ctx context.Context, stream string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream message: %w", err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (s *Stream) ReadJSON(ctx context.Context, stream string, lastID string, dst any) (string, error) {
	if strings.TrimSpace(lastID) == "" {
		lastID = "0"
	}

	for {
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   1,
			Block:   readBlockInterval,
		}).Result()
		if errors.Is(err, redis.Nil) {
			// Block window elapsed with nothing to read.
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("xread %s: %w", stream, err)
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				payload, ok := msg.Values["payload"].(string)
				if !ok {
					return "", fmt.Errorf("stream %s message %s has no payload field", stream, msg.ID)
				}
				if err := json.Unmarshal([]byte(payload), dst); err != nil {
					return "", fmt.Errorf("unmarshal stream message %s: %w", msg.ID, err)
				}
				return msg.ID, nil
			}
		}
	}
}

// parseStreamOffset converts a stream ID ("42" or "42-0") into the number of
// messages already consumed. Empty input means start from the beginning and
// negative values clamp to zero.
func parseStreamOffset(id string) (int64, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return 0, nil
	}
	if i := strings.Index(trimmed, "-"); i > 0 {
		trimmed = trimmed[:i]
	}

	offset, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream offset %q is not numeric", id)
	}
	if offset < 0 {
		return 0, nil
	}
	return offset, nil
}
