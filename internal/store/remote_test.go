package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/photo"
)

// fakeObjectStore is an in-memory ObjectStore with injectable failures.
type fakeObjectStore struct {
	objects   map[string][]byte
	putErr    error
	removeErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) EnsureBucket(_ context.Context) error { return nil }

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Remove(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, key)
	return nil
}

// createRemoteStore builds a RemoteStore against a temporary SQLite
// database and a fake object store, sidestepping MySQL and MinIO.
func createRemoteStore(t *testing.T) (*RemoteStore, *fakeObjectStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/remote.db"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&photoRow{}))

	settings := &conf.Settings{}
	settings.Storage.Remote.Endpoint = "minio.test:9000"
	settings.Storage.Remote.Bucket = "photos"

	objects := newFakeObjectStore()
	ds := &RemoteStore{Settings: settings, DB: db, objects: objects}
	return ds, objects
}

func TestRemoteUploadNew(t *testing.T) {
	ds, objects := createRemoteStore(t)
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPublic)
	saved, err := ds.Save(ctx, &p)
	require.NoError(t, err)

	key := fmt.Sprintf("%s.jpg", p.ID)
	assert.Contains(t, objects.objects, key, "payload must land in the object store")
	assert.Equal(t, "http://minio.test:9000/photos/"+key, saved.URL)
	assert.Empty(t, saved.Data, "remote-resident records drop the raw payload")

	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, saved.URL, photos[0].URL)
	assert.False(t, photos[0].IsAnalyzing)
	assert.Nil(t, photos[0].Analysis, "no analysis until the title field is populated")
}

func TestRemoteUploadAbortsOnObjectFailure(t *testing.T) {
	ds, objects := createRemoteStore(t)
	objects.putErr = fmt.Errorf("connection reset")
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPublic)
	_, err := ds.Save(ctx, &p)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryObjectStore, errors.CategoryOf(err))

	// No orphan metadata row referencing a missing object.
	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestRemoteUpdateMetadata(t *testing.T) {
	ds, objects := createRemoteStore(t)
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPrivate)
	saved, err := ds.Save(ctx, &p)
	require.NoError(t, err)
	require.Len(t, objects.objects, 1)

	settled := saved.WithAnalysis(&photo.Analysis{
		Title:       "Sunset",
		Description: "Golden light over the water.",
		Mood:        "Calm",
		Tags:        []string{"sunset", "beach"},
	})
	_, err = ds.Save(ctx, &settled)
	require.NoError(t, err)
	assert.Len(t, objects.objects, 1, "metadata update must not touch the object store")

	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	require.NotNil(t, photos[0].Analysis)
	assert.Equal(t, "Sunset", photos[0].Analysis.Title)
	assert.Equal(t, "Calm", photos[0].Analysis.Mood)
	assert.Equal(t, []string{"sunset", "beach"}, photos[0].Analysis.Tags)
	assert.Equal(t, photo.PrivacyPrivate, photos[0].Privacy, "privacy untouched by enrichment merge")
}

func TestRemoteListOrder(t *testing.T) {
	ds, _ := createRemoteStore(t)
	ctx := context.Background()

	base := time.Now().UnixMilli()
	var ids []string
	for i := 0; i < 3; i++ {
		p := testPhoto(photo.PrivacyPublic)
		p.Timestamp = base + int64(i)
		_, err := ds.Save(ctx, &p)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, ids[2], photos[0].ID)
	assert.Equal(t, ids[0], photos[2].ID)
}

func TestRemoteDelete(t *testing.T) {
	ds, objects := createRemoteStore(t)
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPublic)
	saved, err := ds.Save(ctx, &p)
	require.NoError(t, err)

	require.NoError(t, ds.Delete(ctx, p.ID, saved.URL))

	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.Empty(t, objects.objects, "object removed alongside the row")
}

func TestRemoteDeleteObjectFailureIsNotRolledBack(t *testing.T) {
	ds, objects := createRemoteStore(t)
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPublic)
	saved, err := ds.Save(ctx, &p)
	require.NoError(t, err)

	objects.removeErr = fmt.Errorf("access denied")
	require.NoError(t, ds.Delete(ctx, p.ID, saved.URL),
		"object removal failure must not fail the delete")

	// Row is gone even though the object leaked.
	photos, err := ds.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.Len(t, objects.objects, 1)
}

func TestRemoteDeleteLegacyRowFallsBackToURLTail(t *testing.T) {
	ds, objects := createRemoteStore(t)
	ctx := context.Background()

	// A row written before the object key column existed.
	objects.objects["legacy.png"] = []byte{0x89}
	row := photoRow{
		ID:        "legacy-id",
		URL:       "http://minio.test:9000/photos/legacy.png",
		Timestamp: time.Now().UnixMilli(),
		Privacy:   string(photo.PrivacyPublic),
	}
	require.NoError(t, ds.DB.Create(&row).Error)

	require.NoError(t, ds.Delete(ctx, "legacy-id", row.URL))
	assert.Empty(t, objects.objects, "key derived from the URL tail")
}

func TestRemoteSetPrivacy(t *testing.T) {
	ds, _ := createRemoteStore(t)
	ctx := context.Background()

	p := testPhoto(photo.PrivacyPrivate)
	_, err := ds.Save(ctx, &p)
	require.NoError(t, err)

	require.NoError(t, ds.SetPrivacy(ctx, p.ID, photo.PrivacyPublic))
	got, err := ds.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, photo.PrivacyPublic, got.Privacy)

	err = ds.SetPrivacy(ctx, "no-such-id", photo.PrivacyPublic)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestKeyFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"typical", "http://minio.test:9000/photos/abc123.jpg", "abc123.jpg"},
		{"no extension", "https://cdn.example.com/photos/abc123", "abc123"},
		{"trailing slash", "http://minio.test:9000/photos/", ""},
		{"empty", "", ""},
		{"no slash", "abc123.jpg", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyFromURL(tt.url))
		})
	}
}
