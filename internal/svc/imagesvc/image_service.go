package imagesvc

import (
	"context"

	"github.com/mkrupp/joynest/internal/domain"
)

// ImageService manages uploaded item images on top of a media service.
type ImageService interface {
	// Upload checks and stores an image on behalf of the caller in ctx and
	// returns its public reference.
	Upload(ctx context.Context, filename string, body []byte) (domain.ImageUploadResponse, error)

	// Fetch retrieves the image with the specified ID, resized to fit width
	// and height when either is non-zero. A zero dimension follows the other
	// one, keeping the aspect ratio.
	Fetch(ctx context.Context, imageID domain.MediaID, width, height int) (domain.Media, error)

	// Delete removes the image a reference returned by Upload points at.
	// The reference may be a full URL or a path. Only the uploader may delete.
	Delete(ctx context.Context, reference string) error

	// MaxSize returns the maximum allowed file size in bytes.
	MaxSize() int64

	// CheckUploadConstraints checks size, extension and, when body is not nil,
	// the magic header of an upload. Returns the detected MIME type.
	CheckUploadConstraints(filename string, size int64, body []byte) (string, error)
}
