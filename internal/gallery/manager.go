// Package gallery owns the in-memory authoritative photo set for the
// running process and orchestrates the upload, enrichment and
// persistence flow around it.
package gallery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/photo"
	"github.com/tphakala/lensstory/internal/store"
)

// Analyzer is the enrichment pipeline seen from the controller: one call
// per uploaded image, all-or-nothing result.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, mimeType, language string) (*photo.Analysis, error)
}

// Upload is one file handed in by the upload surface.
type Upload struct {
	Data     []byte
	MimeType string
	FileExt  string
}

// Manager orchestrates upload, optimistic insert, enrichment and
// persistence. The photo set is updated by whole-set replacement: every
// mutation reads the current snapshot, produces a new one and installs
// it, so concurrent enrichment completions interleave safely.
type Manager struct {
	mu     sync.RWMutex
	photos []photo.Photo // authoritative snapshot, newest first

	store    store.Interface
	analyzer Analyzer
	language string
	logger   *slog.Logger

	// ctx scopes the background save-then-enrich sequences. It belongs to
	// the manager, not to any request: the sequences outlive the HTTP
	// request that started them and end only at manager shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks in-flight background work so tests and shutdown can wait
	// for settlement.
	wg sync.WaitGroup
}

// New creates a manager on top of the given store and analyzer.
func New(st store.Interface, analyzer Analyzer, settings *conf.Settings) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    st,
		analyzer: analyzer,
		language: settings.Gallery.Language,
		logger:   logging.ForService("gallery"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load rehydrates the authoritative set from the active backend. Loaded
// records are always settled.
func (m *Manager) Load(ctx context.Context) error {
	photos, err := m.store.GetAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.photos = photos
	m.mu.Unlock()

	m.logger.Info("gallery loaded", "count", len(photos))
	return nil
}

// Photos returns a copy of the current snapshot, newest first.
func (m *Manager) Photos() []photo.Photo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]photo.Photo, len(m.photos))
	copy(out, m.photos)
	return out
}

// Community returns the public subset of the snapshot. This is a pure
// filter over the one authoritative set, never a separate store.
func (m *Manager) Community() []photo.Photo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]photo.Photo, 0, len(m.photos))
	for _, p := range m.photos {
		if p.Privacy == photo.PrivacyPublic {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the snapshot record with the given id.
func (m *Manager) Get(id string) (photo.Photo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.photos {
		if p.ID == id {
			return p, true
		}
	}
	return photo.Photo{}, false
}

// update installs fn's result as the new snapshot. fn must not mutate
// the slice it receives.
func (m *Manager) update(fn func(current []photo.Photo) []photo.Photo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos = fn(m.photos)
}

// Upload accepts a batch of files with one privacy level, inserts the
// new records optimistically and kicks off the per-record
// save-then-enrich sequence on the manager's own context. Each record's
// sequence is independent; there is no bound on concurrent enrichment
// calls and no cross-record locking. The language hint applies to this
// batch; empty means the configured default.
func (m *Manager) Upload(uploads []Upload, privacy photo.PrivacyLevel, language string) []photo.Photo {
	if language == "" {
		language = m.language
	}

	newPhotos := make([]photo.Photo, 0, len(uploads))
	for _, u := range uploads {
		newPhotos = append(newPhotos, photo.New(u.Data, u.MimeType, u.FileExt, privacy))
	}

	// Optimistic insert: visible before any durable write completes.
	m.update(func(current []photo.Photo) []photo.Photo {
		out := make([]photo.Photo, 0, len(current)+len(newPhotos))
		out = append(out, newPhotos...)
		out = append(out, current...)
		return out
	})

	for i := range newPhotos {
		p := newPhotos[i].Clone()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.process(m.ctx, p, language)
		}()
	}

	return newPhotos
}

// process runs one record's durable-save-then-enrich sequence.
func (m *Manager) process(ctx context.Context, p photo.Photo, language string) {
	// The remote backend clears the payload once the object is uploaded,
	// so the bytes for analysis are captured up front.
	payload := p.Data

	saved, err := m.store.Save(ctx, &p)
	if err != nil {
		// Acknowledged gap: the optimistic record stays visible
		// in-memory in a non-persisted state. No retry.
		m.logger.Warn("durable create failed, record remains in memory unsynced",
			"photo_id", p.ID, "error", err)
	} else {
		// Fold in durable state: the display URL, and for the remote
		// backend the cleared payload. Settle fields are merged from the
		// current snapshot in case enrichment somehow won the race.
		m.update(func(current []photo.Photo) []photo.Photo {
			out := make([]photo.Photo, len(current))
			copy(out, current)
			for i := range out {
				if out[i].ID == p.ID {
					next := out[i].Clone()
					next.URL = saved.URL
					next.Data = saved.Data
					out[i] = next
					break
				}
			}
			return out
		})
		p = saved
	}

	m.enrich(ctx, p, payload, language)
}

// enrich invokes the captioning service for one record and merges the
// settled outcome back into the snapshot and the active backend. Only
// the settle fields are written: the merge starts from the record
// currently in the snapshot, so concurrent changes such as a privacy
// toggle made while enrichment was in flight are preserved. One
// record's failure never affects others in flight.
func (m *Manager) enrich(ctx context.Context, p photo.Photo, payload []byte, language string) {
	analysis, err := m.analyzer.Analyze(ctx, payload, p.MimeType, language)
	if err != nil {
		m.logger.Warn("enrichment failed", "photo_id", p.ID, "error", err)
	}

	var settled photo.Photo
	found := false
	m.update(func(current []photo.Photo) []photo.Photo {
		out := make([]photo.Photo, len(current))
		copy(out, current)
		for i := range out {
			if out[i].ID == p.ID {
				if err != nil {
					out[i] = out[i].WithError("Analysis failed")
				} else {
					out[i] = out[i].WithAnalysis(analysis)
				}
				settled = out[i]
				found = true
				break
			}
		}
		return out
	})

	if !found {
		// The record was deleted while enrichment was in flight. Late
		// completion is an ignorable update, not a crash.
		m.logger.Debug("enrichment settled for a deleted photo, dropping result",
			"photo_id", p.ID)
		return
	}

	if _, err := m.store.Save(ctx, &settled); err != nil {
		// The in-memory record stays ahead of durable state until the
		// next successful write.
		m.logger.Warn("durable settle update failed", "photo_id", p.ID, "error", err)
	}
}

// Delete removes a record. The in-memory set changes only after the
// durable delete succeeds.
func (m *Manager) Delete(ctx context.Context, id string) error {
	p, ok := m.Get(id)
	if !ok {
		return nil
	}

	if err := m.store.Delete(ctx, id, p.URL); err != nil {
		return err
	}

	m.update(func(current []photo.Photo) []photo.Photo {
		out := make([]photo.Photo, 0, len(current))
		for _, c := range current {
			if c.ID != id {
				out = append(out, c)
			}
		}
		return out
	})
	return nil
}

// SetPrivacy changes a record's privacy level, durable first, memory
// after.
func (m *Manager) SetPrivacy(ctx context.Context, id string, level photo.PrivacyLevel) error {
	if err := m.store.SetPrivacy(ctx, id, level); err != nil {
		return err
	}

	m.update(func(current []photo.Photo) []photo.Photo {
		out := make([]photo.Photo, len(current))
		copy(out, current)
		for i := range out {
			if out[i].ID == id {
				next := out[i].Clone()
				next.Privacy = level
				out[i] = next
				break
			}
		}
		return out
	})
	return nil
}

// TogglePrivacy flips a record between public and private and returns
// the new level.
func (m *Manager) TogglePrivacy(ctx context.Context, id string) (photo.PrivacyLevel, error) {
	p, ok := m.Get(id)
	if !ok {
		return "", notFound(id)
	}

	next := photo.PrivacyPrivate
	if p.Privacy == photo.PrivacyPrivate {
		next = photo.PrivacyPublic
	}
	if err := m.SetPrivacy(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}

// Wait blocks until all in-flight background work has settled. Used by
// tests and by graceful shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels the background context. In-flight sequences abort at
// their next context-aware call; callers that want them to settle first
// call Wait before Shutdown.
func (m *Manager) Shutdown() {
	m.cancel()
}

func notFound(id string) error {
	return errors.Newf("photo not found: %s", id).
		Component("gallery").
		Category(errors.CategoryNotFound).
		Context("photo_id", id).
		Build()
}
