package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable means the sink rejected the append. The entry was
	// not chained; callers treat the guarded operation as failed.
	ErrUnavailable = errors.New("audit: sink unavailable")

	// ErrClosed is returned by Record after Close.
	ErrClosed = errors.New("audit: log closed")
)

// Sink is a durable destination for chained entries. Append is called
// from a single goroutine, one entry at a time, in chain order.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

type recordRequest struct {
	ctx   context.Context
	entry Entry
	reply chan recordResult
}

type recordResult struct {
	entry Entry
	err   error
}

// Log serializes all appends through one writer goroutine that owns the
// chain tail. Concurrent Record calls are totally ordered; no lock is
// held while the sink runs, and the tail only advances after the sink
// accepts the entry.
type Log struct {
	sink Sink
	reqs chan recordRequest

	mu   sync.Mutex
	tail string

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewLog starts the writer goroutine. tail seeds the chain: empty for a
// brand new log, or the hash of the last persisted entry when resuming.
func NewLog(sink Sink, tail string) *Log {
	l := &Log{
		sink:   sink,
		reqs:   make(chan recordRequest),
		tail:   tail,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Log) run() {
	defer close(l.done)
	for {
		select {
		case <-l.closed:
			return
		case req := <-l.reqs:
			req.reply <- l.append(req.ctx, req.entry)
		}
	}
}

func (l *Log) append(ctx context.Context, e Entry) recordResult {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	prev := l.LastHash()
	e.PrevHash = prev
	e.Hash = ComputeHash(e, prev)

	if err := l.sink.Append(ctx, e); err != nil {
		return recordResult{err: errors.Join(ErrUnavailable, err)}
	}
	l.mu.Lock()
	l.tail = e.Hash
	l.mu.Unlock()
	return recordResult{entry: e}
}

// Record chains and persists an entry, filling ID and Timestamp when
// unset. It blocks until the writer has accepted or rejected the entry,
// so a nil return means the event is durable in the sink.
func (l *Log) Record(ctx context.Context, e Entry) (Entry, error) {
	req := recordRequest{ctx: ctx, entry: e, reply: make(chan recordResult, 1)}
	select {
	case <-l.closed:
		return Entry{}, ErrClosed
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case l.reqs <- req:
	}
	res := <-req.reply
	return res.entry, res.err
}

// LastHash returns the current chain tail.
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}

// Close stops the writer. In-flight Record calls complete; later calls
// return ErrClosed.
func (l *Log) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		<-l.done
	})
}
