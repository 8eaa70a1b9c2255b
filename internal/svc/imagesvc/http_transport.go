package imagesvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	http_ "github.com/mkrupp/joynest/internal/infra/transport/http"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

// HTTPTransportConfig contains configuration parameters for the image routes.
type HTTPTransportConfig struct {
	// MultipartFileName is the form field name for file uploads.
	MultipartFileName string `env:"MULTIPART_FILE_NAME" default:"image"`

	// URLReferenceParam is the query parameter carrying the reference to delete.
	URLReferenceParam string `env:"URL_REFERENCE_PARAM" default:"url"`

	// CacheMaxAge is the max-age in seconds served with images. Content is
	// addressed by hash, so it never changes under the same reference.
	CacheMaxAge int `env:"CACHE_MAX_AGE" default:"86400"`

	// MultipartFormMaxMemory is the part of a multipart form kept in memory.
	MultipartFormMaxMemory int64 `env:"MULTIPART_FORM_MAX_MEMORY" default:"1048576"`
}

// ErrNoMultipartFile is returned when an upload carries no file.
var ErrNoMultipartFile = domain.NewError(domain.KindValidation, "no image in upload")

// multipartOverhead allows for boundaries and headers around the file part.
const multipartOverhead = 64 << 10

// HTTPTransport serves the image routes:
// - POST /images: upload an image (authenticated)
// - DELETE /images?url=...: delete an uploaded image (authenticated, owner only)
// - GET /media/{file}: download an image, optionally resized via ?width=&height=
type HTTPTransport struct {
	imageSvc ImageService
	log      logging.Logger
	cfg      HTTPTransportConfig
	mux      *http.ServeMux
	uploads  *prometheus.CounterVec
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport. Uploads and deletes are
// authenticated through authClient. registry may be nil.
func NewHTTPTransport(
	imageSvc ImageService,
	authClient authclient.AuthClient,
	registry *metrics.Registry,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	ht := &HTTPTransport{
		imageSvc: imageSvc,
		log:      logging.GetLogger("svc.imagesvc.http_transport"),
		cfg:      cfg,
		mux:      http.NewServeMux(),
	}

	if registry != nil {
		ht.uploads = registry.NewCounterVec("image_uploads_total", "Image uploads by outcome.", "outcome")
	}

	ht.mux.Handle("POST /images", http_.AuthorizingMiddleware(http.HandlerFunc(ht.HandleUpload), authClient, ht.log))
	ht.mux.Handle("DELETE /images", http_.AuthorizingMiddleware(http.HandlerFunc(ht.HandleDelete), authClient, ht.log))
	ht.mux.HandleFunc("GET /media/{file}", ht.HandleDownload)

	return ht
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// HandleUpload stores the image in the multipart field MultipartFileName and
// responds 201 with its reference.
func (ht *HTTPTransport) HandleUpload(w http.ResponseWriter, r *http.Request) {
	resp, err := ht.handleUpload(w, r)

	if ht.uploads != nil {
		ht.uploads.WithLabelValues(metrics.Outcome(err)).Inc()
	}

	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusCreated, resp)
}

func (ht *HTTPTransport) handleUpload(w http.ResponseWriter, r *http.Request) (_ domain.ImageUploadResponse, err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "image upload rejected", "error", err)
		}
	}(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, ht.imageSvc.MaxSize()+multipartOverhead)

	if err := r.ParseMultipartForm(ht.cfg.MultipartFormMaxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return domain.ImageUploadResponse{}, errors.Join(domain.ErrImageTooLarge, err)
		}

		return domain.ImageUploadResponse{}, errors.Join(ErrNoMultipartFile, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(ht.cfg.MultipartFileName)
	if err != nil {
		return domain.ImageUploadResponse{}, errors.Join(ErrNoMultipartFile, err)
	}
	defer file.Close()

	// cheap check before reading the file
	if _, err := ht.imageSvc.CheckUploadConstraints(header.Filename, header.Size, nil); err != nil {
		return domain.ImageUploadResponse{}, err
	}

	body, err := io.ReadAll(file)
	if err != nil {
		return domain.ImageUploadResponse{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}

	return ht.imageSvc.Upload(r.Context(), header.Filename, body)
}

// HandleDelete deletes the image referenced by the URLReferenceParam query
// parameter and responds 204.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get(ht.cfg.URLReferenceParam)
	if reference == "" {
		http_.WriteError(w, r, ht.log, domain.ErrInvalidImageReference)

		return
	}

	if err := ht.imageSvc.Delete(r.Context(), reference); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDownload serves an image by its file name, with optional width and
// height query parameters for resizing.
func (ht *HTTPTransport) HandleDownload(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleDownload(w, r)
}

func (ht *HTTPTransport) handleDownload(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "image download failed", "error", err)
		}
	}(r.Context())

	imageID, err := ParseReference(MediaPathPrefix + r.PathValue("file"))
	if err != nil {
		http_.WriteError(w, r, ht.log, domain.ErrMediaNotFound)

		return err
	}

	width, err := dimension(r, "width")
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return err
	}

	height, err := dimension(r, "height")
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return err
	}

	img, err := ht.imageSvc.Fetch(r.Context(), imageID, width, height)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return fmt.Errorf("fetch: %w", err)
	}

	w.Header().Set("Content-Type", img.MIMEType())
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size(), 10))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(ht.cfg.CacheMaxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := img.WriteTo(w); err != nil {
		return fmt.Errorf("write to: %w", err)
	}

	return nil
}

func dimension(r *http.Request, param string) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(ErrInvalidDimensions, err)
	}

	return v, nil
}
