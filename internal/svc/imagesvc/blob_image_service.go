package imagesvc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/repo/blob"
	"github.com/mkrupp/joynest/internal/svc/mediasvc"
	"github.com/mkrupp/joynest/internal/util/encoding"
)

// MediaPathPrefix is the path under which images are served.
const MediaPathPrefix = "/media/"

// BlobImageService implements ImageService on top of a MediaService.
// Resized variants are cached in a blob repository under "<hash>_<w>x<h>"
// and dropped together with the original content.
type BlobImageService struct {
	cacheRepo blob.Repository
	mediaSvc  mediasvc.MediaService
	cfg       ImageConfig
	log       logging.Logger
}

var _ ImageService = (*BlobImageService)(nil)

// NewBlobImageService creates a new BlobImageService. It opens a cache
// repository for resized images through repoFactory.
func NewBlobImageService(
	ctx context.Context,
	repoFactory blob.RepositoryFactory,
	mediaSvc mediasvc.MediaService,
	cfg ImageConfig,
) (*BlobImageService, error) {
	if _, err := getInterpolatorByName(cfg.Interpolator); err != nil {
		return nil, err
	}

	cacheRepo, err := repoFactory(ctx, "cache", "bin")
	if err != nil {
		return nil, fmt.Errorf("new cache repository: %w", err)
	}

	return &BlobImageService{
		cacheRepo: cacheRepo,
		mediaSvc:  mediaSvc,
		cfg:       cfg,
		log:       logging.GetLogger("svc.imagesvc.blob_image_service"),
	}, nil
}

// ParseReference extracts the media ID from a reference returned by Upload.
// Both full URLs and host-relative paths are accepted.
func ParseReference(reference string) (domain.MediaID, error) {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil {
		return "", errors.Join(domain.ErrInvalidImageReference, err)
	}

	dir, file := path.Split(u.Path)
	if !strings.HasSuffix("/"+dir, MediaPathPrefix) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidImageReference, reference)
	}

	id, err := domain.ParseMediaID(file)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidImageReference, reference)
	}

	return domain.MediaID(encoding.NormalizeCrockfordB32LC(id.String())), nil
}

// IsLocalReference reports whether reference points at an image served by
// this service rather than an external URL.
func IsLocalReference(reference string) bool {
	_, err := ParseReference(reference)

	return err == nil
}

// MaxSize implements ImageService.MaxSize.
func (svc *BlobImageService) MaxSize() int64 {
	return svc.mediaSvc.MaxSize()
}

// CheckUploadConstraints implements ImageService.CheckUploadConstraints.
func (svc *BlobImageService) CheckUploadConstraints(filename string, size int64, body []byte) (string, error) {
	if size > svc.MaxSize() {
		return "", fmt.Errorf("%w: %d exceeds %d bytes", domain.ErrImageTooLarge, size, svc.MaxSize())
	}

	ext := strings.ToLower(filepath.Ext(filename))

	mimeType, ok := imageExtTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, ext)
	}

	if body == nil {
		return mimeType, nil
	}

	if !imageHeaderMatchers[mimeType](body) {
		return "", fmt.Errorf("%w: %q", domain.ErrImageTypeMismatch, ext)
	}

	return mimeType, nil
}

// Upload implements ImageService.Upload.
func (svc *BlobImageService) Upload(
	ctx context.Context,
	filename string,
	body []byte,
) (resp domain.ImageUploadResponse, err error) {
	log := svc.log.With(logging.Group("image", "filename", filename, "size", len(body)))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "image upload failed", "error", err)
		} else {
			log.InfoContext(ctx, "image uploaded", "id", resp.ID)
		}
	}()

	ownerID, ok := context_.UserIDFromContext(ctx)
	if !ok {
		return domain.ImageUploadResponse{}, domain.ErrUnauthorized
	}

	mimeType, err := svc.CheckUploadConstraints(filename, int64(len(body)), body)
	if err != nil {
		return domain.ImageUploadResponse{}, err
	}

	//nolint:exhaustruct
	media := domain.NewMedia(body, domain.MediaMeta{
		Filename: filepath.Base(filename),
		Owner:    ownerID.String(),
		MIMEType: mimeType,
		Ext:      imageTypeExts[mimeType],
	})

	if err := svc.mediaSvc.Store(ctx, media); err != nil {
		return domain.ImageUploadResponse{}, fmt.Errorf("store media: %w", err)
	}

	return domain.ImageUploadResponse{
		ID:       media.ID().String(),
		URL:      strings.TrimSuffix(svc.cfg.PublicBaseURL, "/") + media.Meta().Reference(),
		Filename: media.Meta().Filename,
		Size:     media.Size(),
		MIMEType: mimeType,
	}, nil
}

// Delete implements ImageService.Delete and drops cached variants once the
// content itself is gone.
func (svc *BlobImageService) Delete(ctx context.Context, reference string) (err error) {
	log := svc.log.With(logging.Group("image", "reference", reference))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "image delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "image deleted")
		}
	}()

	imageID, err := ParseReference(reference)
	if err != nil {
		return err
	}

	pruned, dataID, err := svc.mediaSvc.Delete(ctx, imageID)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}

	if !pruned {
		return nil
	}

	unlock, err := svc.cacheRepo.Lock(ctx, dataID, true)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	defer unlock()

	if err := svc.cacheRepo.DeleteAll(ctx, dataID, "_*"); err != nil {
		return fmt.Errorf("delete cache: %w", err)
	}

	return nil
}

// Fetch implements ImageService.Fetch.
func (svc *BlobImageService) Fetch(
	ctx context.Context,
	imageID domain.MediaID,
	width, height int,
) (img domain.Media, err error) {
	log := svc.log.With(logging.Group("image", "id", imageID, "width", width, "height", height))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "image fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "image fetched")
		}
	}()

	if width < 0 || height < 0 || width > svc.cfg.MaxDimension || height > svc.cfg.MaxDimension {
		return domain.Media{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	original, err := svc.mediaSvc.Fetch(ctx, imageID)
	if err != nil {
		return domain.Media{}, fmt.Errorf("fetch media: %w", err)
	}

	if width == 0 && height == 0 {
		return original, nil
	}

	meta := original.Meta()
	meta.MIMEType = resizedType(meta.MIMEType)
	meta.Ext = imageTypeExts[meta.MIMEType]

	cacheID := domain.BlobID(fmt.Sprintf("%s_%dx%d", original.Hash(), width, height))

	unlock, err := svc.cacheRepo.Lock(ctx, cacheID, true)
	if err != nil {
		return domain.Media{}, fmt.Errorf("lock cache: %w", err)
	}
	defer unlock()

	cached, err := svc.cacheRepo.Fetch(ctx, cacheID)
	if err == nil {
		return domain.NewMedia(cached.Bytes(), meta), nil
	} else if !errors.Is(err, domain.ErrBlobNotFound) {
		return domain.Media{}, fmt.Errorf("fetch cache: %w", err)
	}

	resized, outType, err := resizeImage(original.Bytes(), original.MIMEType(), width, height, svc.cfg.Interpolator)
	if err != nil {
		return domain.Media{}, fmt.Errorf("resize image: %w", err)
	}

	meta.MIMEType = outType

	if err := svc.cacheRepo.Store(ctx, domain.NewBlob(cacheID, resized)); err != nil {
		return domain.Media{}, fmt.Errorf("store cache: %w", err)
	}

	return domain.NewMedia(resized, meta), nil
}
