package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/photo"
)

// LocalStore implements Interface on an embedded SQLite database. Full
// records including the raw image payload are stored per id; display
// URLs are rebuilt from scratch on every load and never persisted.
type LocalStore struct {
	Settings *conf.Settings
	DB       *gorm.DB

	// handleToken marks display URLs as belonging to this process. A new
	// token is generated on every Open, so a URL captured before a
	// restart never resolves against stale state.
	handleToken string
	logger      *slog.Logger
}

func validateLocalConfig(settings *conf.Settings) error {
	if settings.Storage.Local.Path == "" {
		return errors.Newf("local storage path is not configured").
			Component("store").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Open sets up the SQLite database connection.
func (ds *LocalStore) Open() error {
	if err := validateLocalConfig(ds.Settings); err != nil {
		return err
	}

	path := ds.Settings.Storage.Local.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("store").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "SQLite", "path", path)
	}

	ds.DB = db
	ds.handleToken = uuid.NewString()
	ds.logger = logging.ForService("store").With("backend", "local")

	return performAutoMigration(db, &photoRecord{}, ds.Settings.Debug, "SQLite", path)
}

// Close closes the underlying SQLite connection.
func (ds *LocalStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	return sqlDB.Close()
}

// displayURL builds the transient handle for a stored record. It points
// at the raw-blob route and carries the per-open token.
func (ds *LocalStore) displayURL(id string) string {
	return fmt.Sprintf("/api/v1/photos/%s/raw?t=%s", id, ds.handleToken)
}

// Save upserts the full record. The local backend needs no create/update
// distinction: the whole row is overwritten idempotently either way.
func (ds *LocalStore) Save(ctx context.Context, p *photo.Photo) (photo.Photo, error) {
	rec := toRecord(p)
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return photo.Photo{}, dbError(err, "save", errors.PriorityHigh, "photo_id", p.ID)
	}

	saved := p.Clone()
	saved.URL = ds.displayURL(p.ID)
	return saved, nil
}

// Get retrieves a record by its id.
func (ds *LocalStore) Get(ctx context.Context, id string) (photo.Photo, error) {
	var rec photoRecord
	if err := ds.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return photo.Photo{}, notFoundError(id, "get")
		}
		return photo.Photo{}, dbError(err, "get", "", "photo_id", id)
	}

	p := recordToPhoto(&rec)
	p.URL = ds.displayURL(p.ID)
	return p, nil
}

// GetAll reads every stored record, rebuilds a fresh display handle from
// each raw payload and returns the set newest first. Records written
// before the privacy field existed come back private.
func (ds *LocalStore) GetAll(ctx context.Context) ([]photo.Photo, error) {
	var recs []photoRecord
	if err := ds.DB.WithContext(ctx).Order("timestamp DESC").Find(&recs).Error; err != nil {
		return nil, dbError(err, "get-all", "")
	}

	photos := make([]photo.Photo, 0, len(recs))
	for i := range recs {
		p := recordToPhoto(&recs[i])
		p.URL = ds.displayURL(p.ID)
		photos = append(photos, p)
	}
	return photos, nil
}

// Delete removes the record by id. The caller is responsible for
// releasing any transient display handle it still holds.
func (ds *LocalStore) Delete(ctx context.Context, id, _ string) error {
	if err := ds.DB.WithContext(ctx).Delete(&photoRecord{}, "id = ?", id).Error; err != nil {
		return dbError(err, "delete", "", "photo_id", id)
	}
	if ds.logger != nil {
		ds.logger.Debug("photo deleted", "photo_id", id)
	}
	return nil
}

// SetPrivacy is a read-modify-write: fetch by id, fail with not-found if
// absent, otherwise update the privacy field.
func (ds *LocalStore) SetPrivacy(ctx context.Context, id string, level photo.PrivacyLevel) error {
	if !level.Valid() {
		return validationError("invalid privacy level", "privacy", string(level))
	}

	var rec photoRecord
	if err := ds.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(id, "set-privacy")
		}
		return dbError(err, "set-privacy", "", "photo_id", id)
	}

	rec.Privacy = string(level)
	if err := ds.DB.WithContext(ctx).Save(&rec).Error; err != nil {
		return dbError(err, "set-privacy", "", "photo_id", id)
	}
	return nil
}
