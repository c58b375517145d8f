// Package audit implements the supplemental sqlite-backed audit trail:
// an append-only record of signing requests and capture submissions, kept
// for operator review. No component's correctness depends on it.
//
// The schema and database/sql usage follow the teacher pack's own
// geth-17-indexer module: sql.Open("sqlite", path) against
// modernc.org/sqlite, a CREATE TABLE IF NOT EXISTS at startup, and plain
// parameterised INSERTs.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"walletbridge/internal/log"
)

// TxRecord is one terminal signing outcome to append.
type TxRecord struct {
	SequenceID uint64
	Method     string
	Display    string // pretty-printed display fields, joined
	Outcome    string // "resolved" or "rejected"
	Detail     string // signature/txhash, or the rejection message
}

// SubmissionRecord is one capture submission to append.
type SubmissionRecord struct {
	TargetURL     string
	Body          string
	ClaimURL      string
	NextCaptureID string
}

// Trail owns the database handle and the buffered write queue. Writes never
// block a live dispatch: Append* enqueues onto a buffered channel drained
// by a single background goroutine, and a full channel drops (and logs)
// the record rather than applying backpressure.
type Trail struct {
	db     *sql.DB
	queue  chan func(*sql.DB)
	done   chan struct{}
}

// Open creates/opens <configDir-derived path> in WAL mode, ensures the
// schema exists, and starts the background writer.
func Open(path string) (*Trail, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: schema: %w", err)
	}

	t := &Trail{db: db, queue: make(chan func(*sql.DB), 256), done: make(chan struct{})}
	go t.run()
	return t, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tx_requests (
	sequence_id INTEGER,
	method      TEXT,
	display     TEXT,
	outcome     TEXT,
	detail      TEXT,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS capture_submissions (
	target_url       TEXT,
	body             TEXT,
	claim_url        TEXT,
	next_capture_id  TEXT,
	created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
);`

func (t *Trail) run() {
	for write := range t.queue {
		write(t.db)
	}
	close(t.done)
}

// AppendTx enqueues a signing outcome. Never blocks; drops and logs if the
// queue is full.
func (t *Trail) AppendTx(r TxRecord) {
	t.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(
			`INSERT INTO tx_requests(sequence_id, method, display, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
			r.SequenceID, r.Method, r.Display, r.Outcome, r.Detail,
		); err != nil {
			log.Audit.Warn().Err(err).Msg("audit write failed")
		}
	})
}

// AppendSubmission enqueues a capture submission.
func (t *Trail) AppendSubmission(r SubmissionRecord) {
	t.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(
			`INSERT INTO capture_submissions(target_url, body, claim_url, next_capture_id) VALUES (?, ?, ?, ?)`,
			r.TargetURL, r.Body, r.ClaimURL, r.NextCaptureID,
		); err != nil {
			log.Audit.Warn().Err(err).Msg("audit write failed")
		}
	})
}

func (t *Trail) enqueue(write func(*sql.DB)) {
	select {
	case t.queue <- write:
	default:
		log.Audit.Warn().Msg("audit queue full, dropping record")
	}
}

// Close stops accepting writes, waits for the queue to drain, and closes
// the database. ctx is honored only while waiting for drain.
func (t *Trail) Close(ctx context.Context) error {
	close(t.queue)
	select {
	case <-t.done:
	case <-ctx.Done():
	}
	return t.db.Close()
}
