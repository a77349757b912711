package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// transcriptQueueCap bounds the pending write backlog. The voice pipeline
// must never stall on storage latency, so Save is a non-blocking enqueue
// and a full queue drops the line with an error log.
const transcriptQueueCap = 1024

// Transcripts implements store.TranscriptRepository with a background
// writer goroutine draining the enqueue channel.
type Transcripts struct {
	pool  *pgxpool.Pool
	queue chan store.TranscriptEntry

	closeOnce sync.Once
	done      chan struct{}
}

// Compile-time interface assertion.
var _ store.TranscriptRepository = (*Transcripts)(nil)

func newTranscripts(pool *pgxpool.Pool) *Transcripts {
	t := &Transcripts{
		pool:  pool,
		queue: make(chan store.TranscriptEntry, transcriptQueueCap),
		done:  make(chan struct{}),
	}
	go t.worker()
	return t
}

// Save implements store.TranscriptRepository as a non-blocking enqueue.
func (t *Transcripts) Save(callID string, role types.Role, content string) {
	entry := store.TranscriptEntry{
		CallID:    callID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	select {
	case t.queue <- entry:
	default:
		slog.Error("transcript queue full, dropping line", "call", callID, "role", string(role))
	}
}

// GetByCall implements store.TranscriptRepository, oldest first.
func (t *Transcripts) GetByCall(ctx context.Context, callID string) ([]store.TranscriptEntry, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT call_id, role, content, timestamp FROM transcripts WHERE call_id = $1 ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: get: %w", err)
	}
	defer rows.Close()

	var entries []store.TranscriptEntry
	for rows.Next() {
		var (
			e    store.TranscriptEntry
			role string
		)
		if err := rows.Scan(&e.CallID, &role, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("transcript store: scan: %w", err)
		}
		e.Role = types.Role(role)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close implements store.TranscriptRepository: stops accepting writes,
// flushes the queue, and joins the worker.
func (t *Transcripts) Close() error {
	t.closeOnce.Do(func() {
		close(t.queue)
		<-t.done
	})
	return nil
}

// worker persists queued entries until the queue is closed and drained.
func (t *Transcripts) worker() {
	defer close(t.done)
	for entry := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := t.pool.Exec(ctx,
			`INSERT INTO transcripts (call_id, role, content, timestamp) VALUES ($1, $2, $3, $4)`,
			entry.CallID, string(entry.Role), entry.Content, entry.Timestamp)
		cancel()
		if err != nil {
			slog.Error("transcript write failed", "call", entry.CallID, "err", err)
		}
	}
}
