package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/photo"
)

// RemoteStore implements Interface on a remote object store (image
// bytes) plus a MySQL metadata table, joined by record id.
type RemoteStore struct {
	Settings *conf.Settings
	DB       *gorm.DB

	objects ObjectStore
	logger  *slog.Logger
}

func (ds *RemoteStore) log() *slog.Logger {
	if ds.logger == nil {
		ds.logger = logging.ForService("store").With("backend", "remote")
	}
	return ds.logger
}

// Open connects to MySQL and the object store and ensures the bucket and
// schema exist.
func (ds *RemoteStore) Open() error {
	remote := &ds.Settings.Storage.Remote

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		remote.MySQL.Username, remote.MySQL.Password,
		remote.MySQL.Host, remote.MySQL.Port,
		remote.MySQL.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		ds.log().Error("failed to open MySQL database",
			"host", remote.MySQL.Host,
			"port", remote.MySQL.Port,
			"database", remote.MySQL.Database,
			"error", err)
		return dbError(err, "open", errors.PriorityCritical, "db_type", "MySQL")
	}
	ds.DB = db

	if ds.objects == nil {
		objects, err := newMinioStore(remote)
		if err != nil {
			return err
		}
		ds.objects = objects
	}
	if err := ds.objects.EnsureBucket(context.Background()); err != nil {
		return err
	}

	return performAutoMigration(db, &photoRow{}, ds.Settings.Debug, "MySQL", remote.MySQL.Host)
}

// Close closes the MySQL connection.
func (ds *RemoteStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	return sqlDB.Close()
}

// objectKey derives the storage key for a record from its id and
// original file extension.
func objectKey(p *photo.Photo) string {
	if p.FileExt == "" {
		return p.ID
	}
	return fmt.Sprintf("%s.%s", p.ID, p.FileExt)
}

// publicURL builds the stable public location for an uploaded object.
func (ds *RemoteStore) publicURL(key string) string {
	remote := &ds.Settings.Storage.Remote
	base := remote.PublicBaseURL
	if base == "" {
		scheme := "http"
		if remote.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, remote.Endpoint)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), remote.Bucket, key)
}

// Save persists a record. A payload-carrying record is a full create:
// the object upload must be confirmed before the metadata row is
// inserted, so a failed upload never leaves an orphan row. A record
// without payload is the post-enrichment metadata update.
func (ds *RemoteStore) Save(ctx context.Context, p *photo.Photo) (photo.Photo, error) {
	if p.HasPayload() {
		return ds.uploadNew(ctx, p)
	}
	return ds.updateMetadata(ctx, p)
}

func (ds *RemoteStore) uploadNew(ctx context.Context, p *photo.Photo) (photo.Photo, error) {
	key := objectKey(p)

	if err := ds.objects.Put(ctx, key, p.Data, p.MimeType); err != nil {
		// Abort the whole create: no metadata row without its object.
		return photo.Photo{}, err
	}

	row := photoRow{
		ID:        p.ID,
		URL:       ds.publicURL(key),
		ObjectKey: key,
		Timestamp: p.Timestamp,
		Privacy:   string(p.Privacy),
	}
	if p.Analysis != nil {
		row.Title = p.Analysis.Title
		row.Description = p.Analysis.Description
		row.Mood = p.Analysis.Mood
		row.Tags = p.Analysis.Tags
	}

	if err := ds.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return photo.Photo{}, dbError(err, "upload-new", errors.PriorityHigh, "photo_id", p.ID)
	}

	// The record is remote-resident now: durable URL attached, raw bytes
	// no longer needed by the caller.
	saved := p.Clone()
	saved.URL = row.URL
	saved.Data = nil
	return saved, nil
}

// updateMetadata updates only the enrichment fields of the existing row.
// It never re-uploads the binary payload.
func (ds *RemoteStore) updateMetadata(ctx context.Context, p *photo.Photo) (photo.Photo, error) {
	update := photoRow{}
	if p.Analysis != nil {
		update.Title = p.Analysis.Title
		update.Description = p.Analysis.Description
		update.Mood = p.Analysis.Mood
		update.Tags = p.Analysis.Tags
	}

	err := ds.DB.WithContext(ctx).
		Model(&photoRow{}).
		Where("id = ?", p.ID).
		Select("title", "description", "mood", "tags").
		Updates(&update).Error
	if err != nil {
		return photo.Photo{}, dbError(err, "update-metadata", "", "photo_id", p.ID)
	}

	return p.Clone(), nil
}

// Get retrieves a record by its id.
func (ds *RemoteStore) Get(ctx context.Context, id string) (photo.Photo, error) {
	var row photoRow
	if err := ds.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return photo.Photo{}, notFoundError(id, "get")
		}
		return photo.Photo{}, dbError(err, "get", "", "photo_id", id)
	}
	return rowToPhoto(&row), nil
}

// GetAll selects all metadata rows newest first. Everything retrievable
// from durable storage is settled; the analysis is present only when the
// title field is populated.
func (ds *RemoteStore) GetAll(ctx context.Context) ([]photo.Photo, error) {
	var rows []photoRow
	if err := ds.DB.WithContext(ctx).Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "get-all", "")
	}

	photos := make([]photo.Photo, 0, len(rows))
	for i := range rows {
		photos = append(photos, rowToPhoto(&rows[i]))
	}
	return photos, nil
}

// Delete removes the metadata row first, then makes a best-effort
// attempt to delete the stored object. Object deletion failing after the
// row is gone is an accepted asymmetry: the leak is logged, not rolled
// back.
func (ds *RemoteStore) Delete(ctx context.Context, id, url string) error {
	// Resolve the object key before the row disappears. Legacy rows
	// without a stored key fall back to the URL tail.
	key := ""
	var row photoRow
	if err := ds.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err == nil {
		key = row.ObjectKey
	}
	if key == "" {
		key = keyFromURL(url)
	}

	if err := ds.DB.WithContext(ctx).Delete(&photoRow{}, "id = ?", id).Error; err != nil {
		return dbError(err, "delete", "", "photo_id", id)
	}

	if key == "" {
		ds.log().Warn("no object key resolvable for deleted photo, object left behind",
			"photo_id", id, "url", url)
		return nil
	}
	if err := ds.objects.Remove(ctx, key); err != nil {
		ds.log().Warn("metadata row deleted but object removal failed",
			"photo_id", id, "object_key", key, "error", err)
	}
	return nil
}

// SetPrivacy updates the privacy field of the matching row.
func (ds *RemoteStore) SetPrivacy(ctx context.Context, id string, level photo.PrivacyLevel) error {
	if !level.Valid() {
		return validationError("invalid privacy level", "privacy", string(level))
	}

	result := ds.DB.WithContext(ctx).
		Model(&photoRow{}).
		Where("id = ?", id).
		Update("privacy", string(level))
	if result.Error != nil {
		return dbError(result.Error, "set-privacy", "", "photo_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError(id, "set-privacy")
	}
	return nil
}

// keyFromURL extracts the object key from a public URL by taking the
// path tail. Heuristic by nature; rows written by this code carry the
// key explicitly and never reach this path.
func keyFromURL(url string) string {
	if url == "" {
		return ""
	}
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return ""
	}
	return url[idx+1:]
}
