// Package validator checks ingest requests before their documents are stored.
// model.NewDocument itself accepts any field values.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/nylar/kensaku/internal/ingestion"
	apperrors "github.com/nylar/kensaku/pkg/errors"
)

const (
	maxTitleLength   = 1024
	maxContentLength = 1 << 20
)

// ValidationError holds per-field failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateIngestRequest returns a *ValidationError naming every invalid field.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	if req.DocumentID <= 0 {
		errs["document_id"] = "must be positive"
	}
	if msg := checkURL(req.URL); msg != "" {
		errs["url"] = msg
	}
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("must be at most %d bytes", maxTitleLength)
	}
	switch {
	case strings.TrimSpace(req.Content) == "":
		errs["content"] = "is required"
	case len(req.Content) > maxContentLength:
		errs["content"] = fmt.Sprintf("must be at most %d bytes", maxContentLength)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkURL(raw string) string {
	if raw == "" {
		return "is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must be an absolute http or https URL"
	}
	if u.Host == "" {
		return "must include a host"
	}
	return ""
}
