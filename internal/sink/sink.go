package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// ErrNoMessage is returned when the outbound queue is empty.
var ErrNoMessage = errors.New("no messages in queue")

// Sink is where the pipeline hands off finished CompanyRecords. The
// Graph Sink is the only consumer downstream of the pipeline itself;
// everything upstream of Publish is this repo's concern, everything
// after it belongs to whatever reads the queue.
type Sink interface {
	Publish(ctx context.Context, record models.CompanyRecord) error
}

// QueueSink publishes finished records onto a goqite queue backed by the
// same SQLite database as the job store, so a single file holds both the
// durable work queue and the outbound delivery queue.
type QueueSink struct {
	q *goqite.Queue
}

// NewQueueSink wraps an already-initialized goqite schema (set up once
// per database by sqlite.Open) with a named queue for finished records.
func NewQueueSink(db *sql.DB, queueName string) (*QueueSink, error) {
	if err := goqite.Setup(context.Background(), db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
	}

	q := goqite.New(goqite.NewOpts{
		DB:   db,
		Name: queueName,
	})

	return &QueueSink{q: q}, nil
}

// Publish enqueues a finished CompanyRecord as a JSON message. Validation
// happens here, not downstream: an invalid record never reaches the queue.
func (s *QueueSink) Publish(ctx context.Context, record models.CompanyRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.q.Send(ctx, goqite.Message{Body: body})
}

// Receive pulls the next queued record. Exposed for the `export`
// subcommand and for tests; the pipeline itself only ever calls Publish.
func (s *QueueSink) Receive(ctx context.Context) (*models.CompanyRecord, func() error, error) {
	msg, err := s.q.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		return nil, nil, ErrNoMessage
	}

	var record models.CompanyRecord
	if err := json.Unmarshal(msg.Body, &record); err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.q.Delete(deleteCtx, msg.ID)
	}

	return &record, deleteFn, nil
}
