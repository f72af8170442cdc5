package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expected  int64
		expectErr bool
	}{
		{name: "empty string", input: "", expected: 0},
		{name: "zero", input: "0", expected: 0},
		{name: "positive integer", input: "123", expected: 123},
		{name: "compound id", input: "123-0", expected: 123},
		{name: "negative clamps to zero", input: "-5", expected: 0},
		{name: "non-numeric", input: "abc", expectErr: true},
		{name: "whitespace trimmed", input: "  42  ", expected: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result, err := parseStreamOffset(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestInMemoryStream_PublishReadRoundtrip(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()
	defer stream.Close()

	ctx := context.Background()
	type msg struct {
		Value string `json:"value"`
	}

	id, err := stream.PublishJSON(ctx, "test-stream", msg{Value: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var dst msg
	nextID, err := stream.ReadJSON(ctx, "test-stream", "0", &dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", dst.Value)
	assert.NotEmpty(t, nextID)
}

func TestInMemoryStream_ReadJSON_BlocksUntilMessage(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type msg struct {
		Value string `json:"value"`
	}

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		_, _ = stream.PublishJSON(ctx, "blocking-stream", msg{Value: "delayed"})
	}()

	var dst msg
	_, err := stream.ReadJSON(ctx, "blocking-stream", "0", &dst)
	require.NoError(t, err)
	assert.Equal(t, "delayed", dst.Value)

	wg.Wait()
}

func TestInMemoryStream_ReadJSON_ContextCancellation(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	var dst struct{}
	_, err := stream.ReadJSON(ctx, "empty-stream", "0", &dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStream_ReadJSON_InvalidOffset(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()
	defer stream.Close()

	var dst struct{}
	_, err := stream.ReadJSON(context.Background(), "s", "abc", &dst)
	require.Error(t, err)
}

func TestInMemoryStream_Close(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()

	ctx := context.Background()
	_, _ = stream.PublishJSON(ctx, "s1", map[string]string{"k": "v"})

	err := stream.Close()
	require.NoError(t, err)

	// After close, buffered messages are gone.
	assert.Equal(t, 0, stream.Len("s1"))
}

func TestInMemoryStream_MultipleMessages_OrderPreserved(t *testing.T) {
	t.Parallel()

	stream := NewInMemoryStream()
	defer stream.Close()

	ctx := context.Background()
	type msg struct {
		Seq int `json:"seq"`
	}

	for i := 1; i <= 3; i++ {
		_, err := stream.PublishJSON(ctx, "ordered-stream", msg{Seq: i})
		require.NoError(t, err)
	}

	lastID := "0"
	for i := 1; i <= 3; i++ {
		var dst msg
		nextID, err := stream.ReadJSON(ctx, "ordered-stream", lastID, &dst)
		require.NoError(t, err, fmt.Sprintf("read message %d", i))
		assert.Equal(t, i, dst.Seq)
		lastID = nextID
	}
}
