// photos.go: photo listing, upload, raw payload and privacy handlers
package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/gallery"
	"github.com/tphakala/lensstory/internal/photo"
)

// maxUploadBytes caps a single image payload.
const maxUploadBytes = 32 << 20

// AnalysisResponse is the annotation part of a photo payload.
type AnalysisResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Mood        string   `json:"mood"`
	Tags        []string `json:"tags"`
}

// PhotoResponse is the API representation of a gallery record. The raw
// payload is never inlined; clients fetch it through the URL.
type PhotoResponse struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	MimeType    string            `json:"mime_type"`
	Timestamp   int64             `json:"timestamp"`
	Privacy     string            `json:"privacy"`
	IsAnalyzing bool              `json:"is_analyzing"`
	Error       string            `json:"error,omitempty"`
	Analysis    *AnalysisResponse `json:"analysis,omitempty"`
}

func toPhotoResponse(p *photo.Photo) PhotoResponse {
	resp := PhotoResponse{
		ID:          p.ID,
		URL:         p.URL,
		MimeType:    p.MimeType,
		Timestamp:   p.Timestamp,
		Privacy:     string(p.Privacy),
		IsAnalyzing: p.IsAnalyzing,
		Error:       p.Error,
	}
	if p.Analysis != nil {
		resp.Analysis = &AnalysisResponse{
			Title:       p.Analysis.Title,
			Description: p.Analysis.Description,
			Mood:        p.Analysis.Mood,
			Tags:        p.Analysis.Tags,
		}
	}
	return resp
}

func toPhotoResponses(photos []photo.Photo) []PhotoResponse {
	out := make([]PhotoResponse, 0, len(photos))
	for i := range photos {
		out = append(out, toPhotoResponse(&photos[i]))
	}
	return out
}

// initPhotoRoutes registers photo-related API endpoints.
func (c *Controller) initPhotoRoutes() {
	c.Group.GET("/photos", c.ListPhotos)
	c.Group.POST("/photos", c.UploadPhotos)
	c.Group.GET("/photos/:id", c.GetPhoto)
	c.Group.GET("/photos/:id/raw", c.GetPhotoRaw)
	c.Group.DELETE("/photos/:id", c.DeletePhoto)
	c.Group.PUT("/photos/:id/privacy", c.SetPhotoPrivacy)
}

// ListPhotos returns the gallery, newest first. With view=community only
// the public subset is returned.
func (c *Controller) ListPhotos(ctx echo.Context) error {
	var photos []photo.Photo
	switch view := ctx.QueryParam("view"); view {
	case "", "all", "mine":
		photos = c.Gallery.Photos()
	case "community":
		photos = c.Gallery.Community()
	default:
		return c.HandleError(ctx, errors.Newf("unknown view %q", view).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "Invalid view parameter", http.StatusBadRequest)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"photos": toPhotoResponses(photos),
		"total":  len(photos),
	})
}

// UploadPhotos accepts one or more image files from a multipart form and
// inserts them into the gallery. The response carries the optimistic
// records; enrichment settles asynchronously.
func (c *Controller) UploadPhotos(ctx echo.Context) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return c.HandleError(ctx, err, "Invalid multipart form", http.StatusBadRequest)
	}

	files := form.File["photos"]
	if len(files) == 0 {
		return c.HandleError(ctx, errors.Newf("no files in field photos").
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "No files uploaded", http.StatusBadRequest)
	}

	privacy := photo.PrivacyLevel(ctx.FormValue("privacy"))
	if privacy == "" {
		privacy = photo.PrivacyPrivate
	}
	if !privacy.Valid() {
		return c.HandleError(ctx, errors.Newf("invalid privacy level %q", privacy).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "Invalid privacy level", http.StatusBadRequest)
	}

	uploads := make([]gallery.Upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadBytes {
			return c.HandleError(ctx, errors.Newf("file %s exceeds size limit", fh.Filename).
				Component("api").
				Category(errors.CategoryLimit).
				Build(), "File too large", http.StatusRequestEntityTooLarge)
		}

		src, err := fh.Open()
		if err != nil {
			return c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
		}
		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
		closeErr := src.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			return c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
			return c.HandleError(ctx, errors.Newf("unsupported content type %q for %s", mimeType, fh.Filename).
				Component("api").
				Category(errors.CategoryValidation).
				Build(), "Only image uploads are accepted", http.StatusUnsupportedMediaType)
		}

		uploads = append(uploads, gallery.Upload{
			Data:     data,
			MimeType: mimeType,
			FileExt:  strings.TrimPrefix(filepath.Ext(fh.Filename), "."),
		})
	}

	// The background save-then-enrich sequence runs on the manager's own
	// context; the request context only governed reading the form above.
	inserted := c.Gallery.Upload(uploads, privacy, ctx.FormValue("language"))

	c.apiLogger.Info("Photos uploaded",
		"count", len(inserted),
		"privacy", string(privacy),
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(http.StatusCreated, map[string]any{
		"photos": toPhotoResponses(inserted),
	})
}

// GetPhoto returns one record by id.
func (c *Controller) GetPhoto(ctx echo.Context) error {
	id := ctx.Param("id")
	p, ok := c.Gallery.Get(id)
	if !ok {
		return c.HandleError(ctx, errors.Newf("photo not found: %s", id).
			Component("api").
			Category(errors.CategoryNotFound).
			Build(), "Photo not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, toPhotoResponse(&p))
}

// GetPhotoRaw serves the binary payload of a locally stored photo. For a
// remote-resident record the payload lives in the object store, so the
// client is redirected to its public URL.
func (c *Controller) GetPhotoRaw(ctx echo.Context) error {
	id := ctx.Param("id")
	p, ok := c.Gallery.Get(id)
	if !ok {
		return c.HandleError(ctx, errors.Newf("photo not found: %s", id).
			Component("api").
			Category(errors.CategoryNotFound).
			Build(), "Photo not found", http.StatusNotFound)
	}

	if len(p.Data) > 0 {
		ctx.Response().Header().Set("Cache-Control", "private, max-age=31536000, immutable")
		return ctx.Blob(http.StatusOK, p.MimeType, p.Data)
	}

	if p.URL != "" && !strings.HasPrefix(p.URL, "/") {
		return ctx.Redirect(http.StatusFound, p.URL)
	}

	return c.HandleError(ctx, errors.Newf("no payload available for %s", id).
		Component("api").
		Category(errors.CategoryNotFound).
		Build(), "Photo payload unavailable", http.StatusNotFound)
}

// DeletePhoto removes a record from the gallery and its backend.
func (c *Controller) DeletePhoto(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.Gallery.Delete(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete photo", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// privacyRequest is the body of a privacy update. An empty level means
// toggle.
type privacyRequest struct {
	Privacy string `json:"privacy"`
}

// SetPhotoPrivacy updates or toggles a record's privacy level.
func (c *Controller) SetPhotoPrivacy(ctx echo.Context) error {
	id := ctx.Param("id")

	var req privacyRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	var level photo.PrivacyLevel
	if req.Privacy == "" {
		next, err := c.Gallery.TogglePrivacy(ctx.Request().Context(), id)
		if err != nil {
			return c.privacyError(ctx, err)
		}
		level = next
	} else {
		level = photo.PrivacyLevel(req.Privacy)
		if !level.Valid() {
			return c.HandleError(ctx, errors.Newf("invalid privacy level %q", req.Privacy).
				Component("api").
				Category(errors.CategoryValidation).
				Build(), "Invalid privacy level", http.StatusBadRequest)
		}
		if err := c.Gallery.SetPrivacy(ctx.Request().Context(), id, level); err != nil {
			return c.privacyError(ctx, err)
		}
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"id":      id,
		"privacy": string(level),
	})
}

func (c *Controller) privacyError(ctx echo.Context, err error) error {
	if errors.IsNotFound(err) {
		return c.HandleError(ctx, err, "Photo not found", http.StatusNotFound)
	}
	return c.HandleError(ctx, err, "Failed to update privacy", http.StatusInternalServerError)
}
