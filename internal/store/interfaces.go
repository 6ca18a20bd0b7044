// interfaces.go: this code defines the interface for the persistence backends
package store

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/photo"
)

// Interface abstracts the underlying persistence implementation. Exactly
// one backend is active for the lifetime of a process; records are never
// split across backends.
type Interface interface {
	Open() error
	Close() error

	// Save persists a record. A record still carrying its raw payload is
	// a full create; one without is a metadata-only update (the
	// post-enrichment merge). The returned record reflects durable state:
	// for a remote create it carries the public URL and no payload.
	Save(ctx context.Context, p *photo.Photo) (photo.Photo, error)

	// Get retrieves one record by id.
	Get(ctx context.Context, id string) (photo.Photo, error)

	// GetAll returns every stored record, settled, ordered by timestamp
	// descending, with display URLs rehydrated.
	GetAll(ctx context.Context) ([]photo.Photo, error)

	// Delete removes the record and its binary payload. The url is the
	// record's current location, used by the remote backend to find the
	// stored object.
	Delete(ctx context.Context, id, url string) error

	// SetPrivacy updates the privacy level of an existing record. A
	// missing id is a not-found error.
	SetPrivacy(ctx context.Context, id string, level photo.PrivacyLevel) error
}

// New creates a store instance based on the provided configuration. The
// remote backend is selected when remote credentials are present,
// otherwise the embedded local database is used. The choice is made once;
// there is no fallback between backends.
func New(settings *conf.Settings) Interface {
	if settings.Storage.RemoteEnabled() {
		return &RemoteStore{Settings: settings}
	}
	return &LocalStore{Settings: settings}
}

// BackendName reports which backend the given configuration selects.
func BackendName(settings *conf.Settings) string {
	if settings.Storage.RemoteEnabled() {
		return "remote"
	}
	return "local"
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, model any, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(model); err != nil {
		return dbError(err, "auto-migrate", errors.PriorityHigh, "db_type", dbType)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
