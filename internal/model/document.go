// Package model defines the document and posting record types that the
// indexing pipeline builds on.
package model

// Document is one ingested unit of text, such as a crawled web page. A
// Document is read-only once constructed and may be shared between
// goroutines without synchronisation.
type Document struct {
	id      int
	url     string
	title   string
	content string
}

// NewDocument returns a Document holding the given fields verbatim. No
// validation is performed; id uniqueness and non-empty fields are policies of
// the owning document store.
func NewDocument(id int, url, title, content string) Document {
	return Document{
		id:      id,
		url:     url,
		title:   title,
		content: content,
	}
}

func (d Document) ID() int {
	return d.id
}

func (d Document) URL() string {
	return d.url
}

func (d Document) Title() string {
	return d.title
}

// Content returns the raw body text consumed by tokenization.
func (d Document) Content() string {
	return d.content
}
