package publishers

import (
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
)

// Event is the payload published downstream for every persisted article.
type Event struct {
	RunID       string               `json:"run_id"`
	SiteID      string               `json:"site_id"`
	SourceName  string               `json:"source_name"`
	Record      domain.ArticleRecord `json:"record"`
	CollectedAt time.Time            `json:"collected_at"`
}

// NewEvent constructs an Event for a persisted record.
func NewEvent(runID, siteID, sourceName string, rec domain.ArticleRecord) Event {
	return Event{
		RunID:       runID,
		SiteID:      siteID,
		SourceName:  sourceName,
		Record:      rec,
		CollectedAt: time.Now().UTC(),
	}
}

// attributes are attached as message metadata by queue publishers. Empty
// values are omitted.
func (e Event) attributes() map[string]string {
	attrs := make(map[string]string, 3)
	for k, v := range map[string]string{
		"run_id":     e.RunID,
		"site_id":    e.SiteID,
		"article_id": e.Record.ID,
	} {
		if v != "" {
			attrs[k] = v
		}
	}
	return attrs
}
