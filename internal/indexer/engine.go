// Package indexer turns documents into posting records. Each document is
// tokenized by one goroutine into its own posting.Builder, then committed to
// a shared posting.MemoryStore that is periodically flushed to segments.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nylar/kensaku/internal/indexer/segment"
	"github.com/nylar/kensaku/internal/indexer/tokenizer"
	"github.com/nylar/kensaku/internal/model"
	"github.com/nylar/kensaku/internal/posting"
	"github.com/nylar/kensaku/pkg/config"
	apperrors "github.com/nylar/kensaku/pkg/errors"
	"github.com/nylar/kensaku/pkg/metrics"
)

// CommitHook is told which terms a successful commit touched.
type CommitHook func(terms []string)

type Engine struct {
	store     *posting.MemoryStore
	tokenizer *tokenizer.Tokenizer
	writer    *segment.Writer
	// readerMu also orders lookups against flushes: Find holds it for
	// reading across the memory and segment reads, Flush holds it for
	// writing while records move from memory to a new segment.
	readerMu sync.RWMutex
	readers  []*segment.Reader
	closed   bool
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	onCommit CommitHook
}

// NewEngine opens (or creates) the data directory and loads any segments
// already in it. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	policy, err := posting.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, fmt.Errorf("indexer config: %w", err)
	}
	unit, err := tokenizer.ParseUnit(cfg.PositionUnit)
	if err != nil {
		return nil, fmt.Errorf("indexer config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		tokenizer: tokenizer.New(tokenizer.WithUnit(unit)),
		writer:    segment.NewWriter(cfg.DataDir),
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "indexer"),
	}
	maxID, err := e.loadExistingSegments()
	if err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.store = posting.NewMemoryStore(policy, posting.NewIDAllocator(maxID))
	return e, nil
}

// OnCommit registers a hook run after every successful commit.
func (e *Engine) OnCommit(hook CommitHook) {
	e.onCommit = hook
}

// IndexDocument tokenizes the document's content and commits one posting
// record per distinct term, each holding the term's positions in scan order.
// A failed size-triggered flush is logged and does not fail the call.
func (e *Engine) IndexDocument(doc model.Document) error {
	start := time.Now()
	tokens, err := e.tokenizer.Tokenize(doc.Content())
	if err != nil {
		e.observe("failed", start)
		return fmt.Errorf("tokenizing document %d: %w", doc.ID(), err)
	}

	b := posting.NewBuilder(doc.ID(), e.store.IDs())
	for _, tok := range tokens {
		b.Add(tok.Term, tok.Position)
	}
	records := b.Records()
	merged, err := e.commit(doc.ID(), records)
	if err != nil {
		e.observe("failed", start)
		if e.metrics != nil && apperrors.Is(err, apperrors.ErrPostingExists) {
			e.metrics.DuplicateCommitsTotal.WithLabelValues(e.store.Policy().String()).Inc()
		}
		return fmt.Errorf("committing postings for document %d: %w", doc.ID(), err)
	}
	e.observe("ok", start)
	if e.metrics != nil {
		e.metrics.PostingsCreatedTotal.Add(float64(len(records) - merged))
		e.metrics.LocationsAppendedTotal.Add(float64(len(tokens)))
		if merged > 0 {
			e.metrics.DuplicateCommitsTotal.WithLabelValues(e.store.Policy().String()).Add(float64(merged))
		}
		e.metrics.MemoryStoreBytes.Set(float64(e.store.Size()))
	}
	if e.onCommit != nil && len(records) > 0 {
		terms := make([]string, len(records))
		for i, r := range records {
			terms[i] = r.Word()
		}
		e.onCommit(terms)
	}

	e.logger.Debug("document indexed in memory",
		"doc_id", doc.ID(),
		"token_count", len(tokens),
		"postings", len(records),
		"merged", merged,
		"mem_size", e.store.Size(),
	)
	if e.store.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory store reached max size, flushing to disk",
			"size", e.store.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		// the commit stands; the records stay in memory for the next flush
		if err := e.Flush(); err != nil {
			e.logger.Error("size-triggered flush failed",
				"doc_id", doc.ID(),
				"error", err,
			)
		}
	}
	return nil
}

// commit stores records for documentID. Under PolicyReject a record whose
// (document, term) pair already sits in a segment fails the commit, so
// uniqueness holds across flushes and restarts.
func (e *Engine) commit(documentID int, records []*model.Index) (int, error) {
	if e.store.Policy() != posting.PolicyReject {
		return e.store.Commit(documentID, records)
	}
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	for _, reader := range e.readers {
		if !reader.HasDocument(documentID) {
			continue
		}
		for _, rec := range records {
			found, err := reader.Contains(documentID, rec.Word())
			if err != nil {
				return 0, fmt.Errorf("checking segment %s: %w", reader.Name(), err)
			}
			if found {
				return 0, apperrors.Newf(apperrors.ErrPostingExists,
					"document %d word %q in segment %s", documentID, rec.Word(), reader.Name())
			}
		}
	}
	return e.store.Commit(documentID, records)
}

// IndexBatch indexes docs with up to cfg.Workers goroutines. Each document is
// handled by exactly one goroutine. The first failure cancels documents not
// yet started; documents already committed stay committed.
func (e *Engine) IndexBatch(ctx context.Context, docs []model.Document) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.cfg.Workers, 1))
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.IndexDocument(doc)
		})
	}
	return g.Wait()
}

// Normalize maps word to the term it is stored under, or "" if it would not
// be indexed.
func (e *Engine) Normalize(word string) string {
	return e.tokenizer.Normalize(word)
}

// Find normalizes word the way document content is normalized and returns
// its postings from memory and from every segment, one per document,
// ordered by document id.
func (e *Engine) Find(word string) ([]posting.Posting, error) {
	term := e.tokenizer.Normalize(word)
	if term == "" {
		return nil, nil
	}
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()

	// oldest first, memory last
	layers := make([][]posting.Posting, 0, len(e.readers)+1)
	for _, reader := range e.readers {
		postings, err := reader.Find(term)
		if err != nil {
			e.logger.Error("segment lookup failed",
				"segment", reader.Name(),
				"term", term,
				"error", err,
			)
			continue
		}
		layers = append(layers, postings)
	}
	layers = append(layers, e.store.Find(term))
	return mergeLayers(layers, e.store.Policy()), nil
}

// Flush writes all unflushed records to a new segment and opens it for
// lookups. Commits wait while the segment is written.
func (e *Engine) Flush() error {
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	if e.closed {
		return nil
	}

	var reader *segment.Reader
	err := e.store.Flush(func(entries []posting.TermEntry) error {
		name, err := e.writer.Write(entries)
		if err != nil {
			return fmt.Errorf("writing segment: %w", err)
		}
		reader, err = segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			return fmt.Errorf("opening new segment for reading: %w", err)
		}
		return nil
	})
	if err != nil {
		e.countFlush("failed")
		return err
	}
	if reader == nil {
		return nil
	}
	e.readers = append(e.readers, reader)
	e.countFlush("ok")
	if e.metrics != nil {
		e.metrics.ActiveSegments.Set(float64(len(e.readers)))
		e.metrics.MemoryStoreBytes.Set(0)
	}
	e.logger.Info("segment flushed",
		"segment", reader.Name(),
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", len(e.readers),
	)
	return nil
}

// StartFlushLoop flushes every cfg.FlushInterval until ctx is cancelled, then
// flushes one last time.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.store.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

// Segments returns the number of open segments.
func (e *Engine) Segments() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

// Close flushes and closes every segment. Later flushes are no-ops.
func (e *Engine) Close() error {
	flushErr := e.Flush()
	if flushErr != nil {
		e.logger.Error("final flush on close failed", "error", flushErr)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	e.closed = true
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "segment", reader.Name(), "error", err)
		}
	}
	e.readers = nil
	return flushErr
}

// loadExistingSegments opens every segment in the data directory in name
// (creation) order and returns the largest posting id found.
func (e *Engine) loadExistingSegments() (int, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		return 0, fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	maxID := 0
	for _, name := range names {
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		maxID = max(maxID, reader.MaxID())
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers), "max_posting_id", maxID)
	if e.metrics != nil {
		e.metrics.ActiveSegments.Set(float64(len(e.readers)))
	}
	return maxID, nil
}

func (e *Engine) observe(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.DocsIndexedTotal.WithLabelValues(status).Inc()
	e.metrics.IndexLatency.Observe(time.Since(start).Seconds())
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// mergeLayers collapses postings for the same document found in several
// layers (oldest first). Under PolicyReject the newest record wins; under
// PolicyMerge locations are concatenated oldest first and the oldest id is
// kept, matching what MemoryStore.Commit does within one layer.
func mergeLayers(layers [][]posting.Posting, policy posting.Policy) []posting.Posting {
	byDoc := make(map[int]*model.Index)
	for _, layer := range layers {
		for _, p := range layer {
			existing, ok := byDoc[p.DocumentID]
			if !ok || policy == posting.PolicyReject {
				byDoc[p.DocumentID] = p.Index
				continue
			}
			for _, loc := range p.Index.Locations() {
				existing.AppendLocation(loc)
			}
		}
	}
	if len(byDoc) == 0 {
		return nil
	}
	out := make([]posting.Posting, 0, len(byDoc))
	for docID, idx := range byDoc {
		out = append(out, posting.Posting{DocumentID: docID, Index: idx})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}
