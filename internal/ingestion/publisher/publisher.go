// Package publisher stores ingested documents and publishes ingest events to
// Kafka for the indexer.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nylar/kensaku/internal/docstore"
	"github.com/nylar/kensaku/internal/ingestion"
	"github.com/nylar/kensaku/internal/ingestion/validator"
	"github.com/nylar/kensaku/pkg/kafka"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	docs     docstore.Store
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func New(docs docstore.Store, producer EventPublisher) *Publisher {
	return &Publisher{
		docs:     docs,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates req, stores the document and publishes its event keyed by
// document id. A duplicate id fails with ErrDocumentExists. If the publish
// fails the stored document is removed so the request can be retried.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := validator.ValidateIngestRequest(req); err != nil {
		return nil, err
	}
	if err := p.docs.Put(ctx, req.Document()); err != nil {
		return nil, fmt.Errorf("storing document %d: %w", req.DocumentID, err)
	}

	event := p.newEvent(req)
	if err := p.producer.Publish(ctx, event); err != nil {
		p.compensate(ctx, req.DocumentID)
		return nil, fmt.Errorf("publishing document %d: %w", req.DocumentID, err)
	}
	p.logger.Info("document ingested",
		"doc_id", req.DocumentID,
		"event_id", event.Value.(ingestion.IngestEvent).EventID,
	)
	return response(event), nil
}

// IngestBatch validates every request before storing any. Documents stored
// before a failure are removed again, so the batch is all or nothing from the
// caller's point of view.
func (p *Publisher) IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error) {
	for i := range reqs {
		if err := validator.ValidateIngestRequest(&reqs[i]); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	stored := make([]int, 0, len(reqs))
	events := make([]kafka.Event, 0, len(reqs))
	for i := range reqs {
		if err := p.docs.Put(ctx, reqs[i].Document()); err != nil {
			p.compensate(ctx, stored...)
			return nil, fmt.Errorf("storing document %d: %w", reqs[i].DocumentID, err)
		}
		stored = append(stored, reqs[i].DocumentID)
		events = append(events, p.newEvent(&reqs[i]))
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		p.compensate(ctx, stored...)
		return nil, fmt.Errorf("publishing batch: %w", err)
	}

	out := make([]ingestion.IngestResponse, len(events))
	for i, ev := range events {
		out[i] = *response(ev)
	}
	p.logger.Info("batch ingested", "count", len(out))
	return out, nil
}

func (p *Publisher) newEvent(req *ingestion.IngestRequest) kafka.Event {
	return kafka.Event{
		Key: strconv.Itoa(req.DocumentID),
		Value: ingestion.IngestEvent{
			EventID:    uuid.NewString(),
			DocumentID: req.DocumentID,
			URL:        req.URL,
			Title:      req.Title,
			Content:    req.Content,
			IngestedAt: p.now(),
		},
	}
}

func (p *Publisher) compensate(ctx context.Context, ids ...int) {
	for _, id := range ids {
		if err := p.docs.Delete(ctx, id); err != nil {
			p.logger.Error("failed to remove unpublished document",
				"doc_id", id,
				"error", err,
			)
		}
	}
}

func response(event kafka.Event) *ingestion.IngestResponse {
	ev := event.Value.(ingestion.IngestEvent)
	return &ingestion.IngestResponse{
		EventID:    ev.EventID,
		DocumentID: ev.DocumentID,
		Status:     docstore.StatusPending,
	}
}
