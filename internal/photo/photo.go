// Package photo defines the photo record model shared by the storage
// backends, the enrichment pipeline and the gallery manager.
package photo

import (
	"time"

	"github.com/google/uuid"
)

// PrivacyLevel controls whether a photo is visible in the community feed.
type PrivacyLevel string

const (
	PrivacyPublic  PrivacyLevel = "public"
	PrivacyPrivate PrivacyLevel = "private"
)

// Valid reports whether the level is one of the two known values.
func (p PrivacyLevel) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

// Analysis is the AI-generated annotation for a photo. It is set at most
// once per record, and only as a complete unit: a record either carries a
// full analysis or none at all.
type Analysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Mood        string   `json:"mood"`
	Tags        []string `json:"tags"`
}

// Photo is a single gallery record. The ID is assigned at creation and is
// the join key between the binary payload and its metadata in every
// backend.
type Photo struct {
	ID string

	// URL is where the image bytes can be fetched from. For the local
	// backend this is a transient handle rebuilt on every load and never
	// persisted; for the remote backend it is the durable public object
	// location.
	URL string

	// Data holds the raw image payload until it is remote-resident. The
	// local backend persists it verbatim; the remote backend clears it
	// once the object upload is confirmed.
	Data     []byte
	MimeType string
	FileExt  string

	// Timestamp is the creation time in Unix milliseconds, assigned once.
	// Listings are ordered by it, newest first.
	Timestamp int64

	Privacy  PrivacyLevel
	Analysis *Analysis

	// IsAnalyzing is true from creation until enrichment settles. It is
	// an in-memory state only: records loaded from durable storage are
	// always settled.
	IsAnalyzing bool

	// Error carries the enrichment failure message, if any.
	Error string
}

// New creates a fresh record for an uploaded file in the analyzing state.
func New(data []byte, mimeType, fileExt string, privacy PrivacyLevel) Photo {
	return Photo{
		ID:          uuid.NewString(),
		Data:        data,
		MimeType:    mimeType,
		FileExt:     fileExt,
		Timestamp:   time.Now().UnixMilli(),
		Privacy:     privacy,
		IsAnalyzing: true,
	}
}

// HasPayload reports whether the record still carries raw image bytes
// that have not been handed to a backend yet. The persistence facade
// branches on this: payload present means full create, absent means
// metadata-only update.
func (p *Photo) HasPayload() bool {
	return len(p.Data) > 0
}

// Settled reports whether enrichment has concluded for this record,
// successfully or not.
func (p *Photo) Settled() bool {
	return !p.IsAnalyzing
}

// Clone returns a deep copy. Snapshot replacement in the gallery manager
// relies on records never being mutated in place once published.
func (p Photo) Clone() Photo {
	c := p
	if p.Data != nil {
		c.Data = make([]byte, len(p.Data))
		copy(c.Data, p.Data)
	}
	if p.Analysis != nil {
		a := *p.Analysis
		a.Tags = append([]string(nil), p.Analysis.Tags...)
		c.Analysis = &a
	}
	return c
}

// WithAnalysis returns a settled copy carrying a successful enrichment
// result. The error field is cleared.
func (p Photo) WithAnalysis(a *Analysis) Photo {
	c := p.Clone()
	c.Analysis = a
	c.IsAnalyzing = false
	c.Error = ""
	return c
}

// WithError returns a settled copy in the failed state. Analysis stays
// absent.
func (p Photo) WithError(msg string) Photo {
	c := p.Clone()
	c.Analysis = nil
	c.IsAnalyzing = false
	c.Error = msg
	return c
}
