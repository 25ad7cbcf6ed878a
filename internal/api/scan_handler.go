package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/platform/objectstore"
	"github.com/phrazzld/pagescan/internal/service"
)

// imagesField is the multipart field carrying page images.
const imagesField = "images"

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// UploadLimits bounds a single capture upload.
type UploadLimits struct {
	MaxImages int
	MaxBytes  int64
}

// UploadRecorder counts stored images.
type UploadRecorder interface {
	ImageStored()
}

type nopUploadRecorder struct{}

func (nopUploadRecorder) ImageStored() {}

// ScanHandler serves the token-scoped endpoints used by the capture client.
// Holding a page's token is the only credential they require.
type ScanHandler struct {
	pages   PageRegistry
	scans   ScanJobs
	images  ImageStore
	limits  UploadLimits
	uploads UploadRecorder
	now     func() time.Time
	logger  *slog.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(
	pages PageRegistry,
	scans ScanJobs,
	images ImageStore,
	limits UploadLimits,
	uploads UploadRecorder,
	logger *slog.Logger,
) *ScanHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ScanHandler")
	}
	if uploads == nil {
		uploads = nopUploadRecorder{}
	}
	return &ScanHandler{
		pages:   pages,
		scans:   scans,
		images:  images,
		limits:  limits,
		uploads: uploads,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "scan_handler")),
	}
}

// Resolve handles GET /api/scan/{token}.
func (h *ScanHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ref, err := h.pages.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resolve page")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ref)
}

// UploadImages handles POST /api/scan/{token}/images. Each image is stored,
// appended to the page, and the whole capture is submitted as one scan job.
func (h *ScanHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	page, err := h.pages.PageForToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resolve page")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIError(w, r, fmt.Errorf("%w: %v", objectstore.ErrTooLarge, err), "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart upload", err)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn("failed to remove multipart temp files", slog.String("error", err.Error()))
		}
	}()

	files := r.MultipartForm.File[imagesField]
	if len(files) == 0 {
		HandleAPIError(w, r, service.ErrNoImages, "")
		return
	}
	if len(files) > h.limits.MaxImages {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("At most %d images per upload", h.limits.MaxImages))
		return
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := h.storeImage(r, page, fh)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to store image")
			return
		}
		urls = append(urls, url)
	}

	job, err := h.scans.Submit(r.Context(), page.ID, urls)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit scan")
		return
	}

	log.Info("capture submitted",
		slog.String("page_id", page.ID.String()),
		slog.String("job_id", job.ID.String()),
		slog.Int("images", len(urls)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, scanJobToResponse(job))
}

// storeImage sniffs the image type from its bytes, stores it and appends it
// to the page.
func (h *ScanHandler) storeImage(r *http.Request, page *domain.Page, fh *multipart.FileHeader) (string, error) {
	data, err := readFormFile(fh)
	if err != nil {
		return "", err
	}

	contentType := mimetype.Detect(data).String()
	if !objectstore.IsSupportedType(contentType) {
		return "", fmt.Errorf("%w: %s", objectstore.ErrUnsupportedType, contentType)
	}

	key, err := objectstore.NewKey(page.ID, contentType)
	if err != nil {
		return "", err
	}
	url, err := h.images.Put(r.Context(), key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	h.uploads.ImageStored()

	ref, err := domain.NewImageRef(url, h.now())
	if err != nil {
		return "", err
	}
	if err := h.pages.AppendImage(r.Context(), page.ID, ref); err != nil {
		return "", err
	}
	return url, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded image: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded image: %w", err)
	}
	return data, nil
}

// Status handles GET /api/scan/{token}/status.
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.PageForToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resolve page")
		return
	}

	job, err := h.scans.Status(r.Context(), page.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load scan status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, scanJobToResponse(job))
}
