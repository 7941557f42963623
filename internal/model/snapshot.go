package model

import "time"

// Snapshot is the raw document returned by a single fetch. It belongs to the
// attempt that produced it and is discarded once extraction finishes.
type Snapshot struct {
	Endpoint    Endpoint  `json:"endpoint"`
	URL         string    `json:"url"` // final URL after redirects
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	HTML        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	Source      string    `json:"source"` // fetcher name, e.g. "http" or "browser"
}

// Empty reports whether the snapshot carries no document body.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.HTML) == 0
}
