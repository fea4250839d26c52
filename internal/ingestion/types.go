// Package ingestion defines the request and Kafka event types that carry
// documents from the publisher to the indexer.
package ingestion

import (
	"time"

	"github.com/nylar/kensaku/internal/model"
)

// IngestRequest describes one document to be stored and indexed.
type IngestRequest struct {
	DocumentID int    `json:"document_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

type IngestResponse struct {
	EventID    string `json:"event_id"`
	DocumentID int    `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent is the Kafka payload consumed by the indexer.
type IngestEvent struct {
	EventID    string    `json:"event_id"`
	DocumentID int       `json:"document_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IngestedAt time.Time `json:"ingested_at"`
}

func (r IngestRequest) Document() model.Document {
	return model.NewDocument(r.DocumentID, r.URL, r.Title, r.Content)
}

func (e IngestEvent) Document() model.Document {
	return model.NewDocument(e.DocumentID, e.URL, e.Title, e.Content)
}
