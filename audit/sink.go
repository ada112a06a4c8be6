package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemorySink keeps entries in memory. Intended for tests and for
// embedding scenarios that export the trail elsewhere.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything appended so far, in chain order.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// JSONWriterSink writes newline-delimited JSON entries to w. A write or
// encode failure surfaces to the log as an append failure.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return &JSONWriterSink{w: w} }

func (s *JSONWriterSink) Append(_ context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	payload = append(payload, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	return nil
}

// StreamSink appends entries to a Redis stream with XADD. Streams are
// append-only, which matches the no-update, no-delete contract of the
// trail, and consumers can tail them for shipping to cold storage.
type StreamSink struct {
	client redis.UniversalClient
	stream string
}

func NewStreamSink(client redis.UniversalClient, stream string) *StreamSink {
	if stream == "" {
		stream = "ac:audit"
	}
	return &StreamSink{client: client, stream: stream}
}

func (s *StreamSink) Append(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"entry": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("audit: xadd: %w", err)
	}
	return nil
}

// Load reads the whole stream back in append order, for verification
// and tests.
func (s *StreamSink) Load(ctx context.Context) ([]Entry, error) {
	msgs, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("audit: xrange: %w", err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("audit: stream message %s missing entry field", msg.ID)
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("audit: decode stream entry %s: %w", msg.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
