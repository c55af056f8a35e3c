package domain

import "errors"

var (
	// ErrNoBody means the body container was found but held no text.
	ErrNoBody = errors.New("article body is empty")
	// ErrStructureChanged means none of the configured body containers matched,
	// which usually points at a markup change upstream.
	ErrStructureChanged = errors.New("article body container not found")
)

// Extraction is the field set an extractor recovers from an article page.
type Extraction struct {
	Body        string
	PublishTime string
	Author      string
	Category    string
}
