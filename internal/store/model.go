// model.go this code defines the persistence data model for the gallery
package store

import (
	"github.com/tphakala/lensstory/internal/photo"
)

// photoRecord is the local backend's row: the full record including the
// raw image payload. The transient display URL is never stored.
type photoRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Timestamp   int64  `gorm:"index:idx_photos_timestamp"`
	Privacy     string `gorm:"size:16"`
	Data        []byte `gorm:"type:blob"`
	MimeType    string `gorm:"size:64"`
	FileExt     string `gorm:"size:16"`
	Title       string
	Description string   `gorm:"type:text"`
	Mood        string   `gorm:"size:64"`
	Tags        []string `gorm:"serializer:json;type:text"`
	Error       string
}

func (photoRecord) TableName() string { return "photos" }

// photoRow is the remote backend's metadata row. The image bytes live in
// the object store; the row references them by public URL and object key.
type photoRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	URL         string `gorm:"size:512"`
	ObjectKey   string `gorm:"size:128"`
	Timestamp   int64  `gorm:"index:idx_photos_timestamp"`
	Privacy     string `gorm:"size:16"`
	Title       string
	Description string   `gorm:"type:text"`
	Mood        string   `gorm:"size:64"`
	Tags        []string `gorm:"serializer:json;type:text"`
}

func (photoRow) TableName() string { return "photos" }

// toRecord converts a photo to its local row. The URL is dropped: it is a
// process-local handle, invalid across reloads.
func toRecord(p *photo.Photo) photoRecord {
	rec := photoRecord{
		ID:        p.ID,
		Timestamp: p.Timestamp,
		Privacy:   string(p.Privacy),
		Data:      p.Data,
		MimeType:  p.MimeType,
		FileExt:   p.FileExt,
		Error:     p.Error,
	}
	if p.Analysis != nil {
		rec.Title = p.Analysis.Title
		rec.Description = p.Analysis.Description
		rec.Mood = p.Analysis.Mood
		rec.Tags = p.Analysis.Tags
	}
	return rec
}

// recordToPhoto rebuilds a photo from a local row. Anything retrievable
// from durable storage is settled, so IsAnalyzing is always false. Rows
// written before the privacy field existed load as private.
func recordToPhoto(rec *photoRecord) photo.Photo {
	p := photo.Photo{
		ID:        rec.ID,
		Timestamp: rec.Timestamp,
		Privacy:   photo.PrivacyLevel(rec.Privacy),
		Data:      rec.Data,
		MimeType:  rec.MimeType,
		FileExt:   rec.FileExt,
		Error:     rec.Error,
	}
	if !p.Privacy.Valid() {
		p.Privacy = photo.PrivacyPrivate
	}
	if rec.Title != "" {
		p.Analysis = &photo.Analysis{
			Title:       rec.Title,
			Description: rec.Description,
			Mood:        rec.Mood,
			Tags:        rec.Tags,
		}
	}
	return p
}

// rowToPhoto rebuilds a photo from a remote metadata row. The analysis is
// considered present only when the title field is populated.
func rowToPhoto(row *photoRow) photo.Photo {
	p := photo.Photo{
		ID:        row.ID,
		URL:       row.URL,
		Timestamp: row.Timestamp,
		Privacy:   photo.PrivacyLevel(row.Privacy),
	}
	if !p.Privacy.Valid() {
		p.Privacy = photo.PrivacyPrivate
	}
	if row.Title != "" {
		p.Analysis = &photo.Analysis{
			Title:       row.Title,
			Description: row.Description,
			Mood:        row.Mood,
			Tags:        row.Tags,
		}
	}
	return p
}
