// Package consumer feeds ingest events from Kafka into the indexing engine and
// records the outcome in the document store.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nylar/kensaku/internal/docstore"
	"github.com/nylar/kensaku/internal/ingestion"
	"github.com/nylar/kensaku/internal/model"
	apperrors "github.com/nylar/kensaku/pkg/errors"
	"github.com/nylar/kensaku/pkg/kafka"
	"github.com/nylar/kensaku/pkg/resilience"
)

// Indexer is satisfied by *indexer.Engine.
type Indexer interface {
	IndexDocument(doc model.Document) error
}

// HandleMessage returns a kafka.MessageHandler that indexes each ingest event.
// docs may be nil, in which case statuses are not recorded.
//
// Undecodable messages are logged and skipped, and events without a document
// id are rejected without retry. A redelivered event whose postings already
// exist counts as indexed.
func HandleMessage(engine Indexer, docs docstore.Store) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.DocumentID <= 0 {
			return resilience.Permanent(apperrors.Newf(apperrors.ErrInvalidInput,
				"event %s has document id %d", event.EventID, event.DocumentID))
		}
		logger.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"event_id", event.EventID,
		)

		err = engine.IndexDocument(event.Document())
		switch {
		case apperrors.Is(err, apperrors.ErrPostingExists):
			logger.Warn("document already indexed, treating as redelivery",
				"doc_id", event.DocumentID,
				"event_id", event.EventID,
			)
		case err != nil:
			markIndexed(ctx, docs, event.DocumentID, docstore.StatusFailed, logger)
			return fmt.Errorf("indexing document %d: %w", event.DocumentID, err)
		}

		markIndexed(ctx, docs, event.DocumentID, docstore.StatusIndexed, logger)
		logger.Info("document indexed",
			"doc_id", event.DocumentID,
			"event_id", event.EventID,
		)
		return nil
	}
}

func markIndexed(ctx context.Context, docs docstore.Store, id int, status string, logger *slog.Logger) {
	if docs == nil {
		return
	}
	if err := docs.MarkIndexed(ctx, id, status); err != nil {
		logger.Error("failed to update document status",
			"doc_id", id,
			"status", status,
			"error", err,
		)
	}
}
