package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/gallery"
	"github.com/tphakala/lensstory/internal/photo"
	"github.com/tphakala/lensstory/internal/store"
)

// memStore is a minimal in-memory backend for handler tests.
type memStore struct {
	mu   sync.Mutex
	rows map[string]photo.Photo
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]photo.Photo)}
}

func (s *memStore) Open() error  { return nil }
func (s *memStore) Close() error { return nil }

func (s *memStore) Save(_ context.Context, p *photo.Photo) (photo.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := p.Clone()
	saved.URL = "/api/v1/photos/" + p.ID + "/raw"
	s.rows[p.ID] = saved
	return saved, nil
}

func (s *memStore) Get(_ context.Context, id string) (photo.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return photo.Photo{}, fmt.Errorf("not found: %s", id)
	}
	return p, nil
}

func (s *memStore) GetAll(_ context.Context) ([]photo.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]photo.Photo, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memStore) SetPrivacy(_ context.Context, id string, level photo.PrivacyLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("not found: %s", id)
	}
	p.Privacy = level
	s.rows[id] = p
	return nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, []byte, string, string) (*photo.Analysis, error) {
	return &photo.Analysis{
		Title:       "Forest Path",
		Description: "A narrow trail under tall pines.",
		Mood:        "serene",
		Tags:        []string{"forest", "trail"},
	}, nil
}

func setupTestController(t *testing.T) (*Controller, *gallery.Manager) {
	t.Helper()
	return setupTestControllerWith(t, newMemStore(), stubAnalyzer{})
}

func setupTestControllerWith(t *testing.T, st store.Interface, an gallery.Analyzer) (*Controller, *gallery.Manager) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Gallery.Language = "en"

	g := gallery.New(st, an, settings)

	e := echo.New()
	controller, err := New(e, g, nil, settings)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)
	return controller, g
}

func multipartUpload(t *testing.T, privacy string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if privacy != "" {
		require.NoError(t, w.WriteField("privacy", privacy))
	}
	for _, name := range names {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="photos"; filename=%q`, name))
		header.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("jpeg-bytes-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadPhotosEndpoint(t *testing.T) {
	c, g := setupTestController(t)

	body, contentType := multipartUpload(t, "public", "a.jpg", "b.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Photos []PhotoResponse `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Photos, 2)
	for _, p := range resp.Photos {
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "public", p.Privacy)
		assert.True(t, p.IsAnalyzing)
		assert.Nil(t, p.Analysis)
	}

	g.Wait()
	got, ok := g.Get(resp.Photos[0].ID)
	require.True(t, ok)
	assert.True(t, got.Settled())
}

// slowStore delays writes and fails them once the context is gone,
// modeling a real database under load.
type slowStore struct {
	*memStore
	delay time.Duration
}

func (s *slowStore) Save(ctx context.Context, p *photo.Photo) (photo.Photo, error) {
	time.Sleep(s.delay)
	if err := ctx.Err(); err != nil {
		return photo.Photo{}, err
	}
	return s.memStore.Save(ctx, p)
}

type slowAnalyzer struct {
	delay time.Duration
}

func (a slowAnalyzer) Analyze(ctx context.Context, _ []byte, _, _ string) (*photo.Analysis, error) {
	time.Sleep(a.delay)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stubAnalyzer{}.Analyze(ctx, nil, "", "")
}

func TestUploadBackgroundWorkOutlivesRequest(t *testing.T) {
	st := &slowStore{memStore: newMemStore(), delay: 50 * time.Millisecond}
	c, g := setupTestControllerWith(t, st, slowAnalyzer{delay: 50 * time.Millisecond})

	srv := httptest.NewServer(c.Echo)
	defer srv.Close()

	body, contentType := multipartUpload(t, "private", "a.jpg")
	resp, err := http.Post(srv.URL+"/api/v1/photos", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Photos []PhotoResponse `json:"photos"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Photos, 1)

	// The request context died when the handler returned; the durable
	// create and the enrichment must complete regardless.
	g.Wait()

	durable, err := st.Get(context.Background(), created.Photos[0].ID)
	require.NoError(t, err)
	require.NotNil(t, durable.Analysis, "settle update must reach the store")

	got, ok := g.Get(created.Photos[0].ID)
	require.True(t, ok)
	assert.True(t, got.Settled())
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Analysis)
}

func TestUploadPhotosRejectsEmptyForm(t *testing.T) {
	c, _ := setupTestController(t)

	body, contentType := multipartUpload(t, "private")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestUploadPhotosRejectsBadPrivacy(t *testing.T) {
	c, _ := setupTestController(t)

	body, contentType := multipartUpload(t, "friends-only", "a.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPhotosViews(t *testing.T) {
	c, g := setupTestController(t)

	g.Upload([]gallery.Upload{
		{Data: []byte("a"), MimeType: "image/jpeg", FileExt: "jpg"},
	}, photo.PrivacyPublic, "")
	g.Upload([]gallery.Upload{
		{Data: []byte("b"), MimeType: "image/jpeg", FileExt: "jpg"},
	}, photo.PrivacyPrivate, "")
	g.Wait()

	list := func(query string) (int, []PhotoResponse) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/photos"+query, http.NoBody)
		rec := httptest.NewRecorder()
		c.Echo.ServeHTTP(rec, req)
		var resp struct {
			Photos []PhotoResponse `json:"photos"`
			Total  int             `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec.Code, resp.Photos
	}

	code, all := list("")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, all, 2)

	code, community := list("?view=community")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, community, 1)
	assert.Equal(t, "public", community[0].Privacy)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos?view=bogus", http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPhotoRawServesLocalPayload(t *testing.T) {
	c, g := setupTestController(t)

	inserted := g.Upload([]gallery.Upload{
		{Data: []byte("jpeg-payload"), MimeType: "image/jpeg", FileExt: "jpg"},
	}, photo.PrivacyPrivate, "")
	g.Wait()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+inserted[0].ID+"/raw", http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "jpeg-payload", rec.Body.String())
}

func TestGetPhotoRawMissing(t *testing.T) {
	c, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/missing/raw", http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePhotoEndpoint(t *testing.T) {
	c, g := setupTestController(t)

	inserted := g.Upload([]gallery.Upload{
		{Data: []byte("a"), MimeType: "image/jpeg", FileExt: "jpg"},
	}, photo.PrivacyPrivate, "")
	g.Wait()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/photos/"+inserted[0].ID, http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := g.Get(inserted[0].ID)
	assert.False(t, ok)
}

func TestSetPhotoPrivacyEndpoint(t *testing.T) {
	c, g := setupTestController(t)

	inserted := g.Upload([]gallery.Upload{
		{Data: []byte("a"), MimeType: "image/jpeg", FileExt: "jpg"},
	}, photo.PrivacyPrivate, "")
	g.Wait()

	send := func(id, body string) (*httptest.ResponseRecorder, map[string]string) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/photos/"+id+"/privacy",
			bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c.Echo.ServeHTTP(rec, req)
		resp := map[string]string{}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return rec, resp
	}

	rec, resp := send(inserted[0].ID, `{"privacy":"public"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public", resp["privacy"])

	// Empty level toggles.
	rec, resp = send(inserted[0].ID, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private", resp["privacy"])

	rec, _ = send(inserted[0].ID, `{"privacy":"unlisted"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = send("missing", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheckEndpoint(t *testing.T) {
	c, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "local", resp["backend"])
}