package mediasvc

import (
	"context"

	"github.com/mkrupp/joynest/internal/domain"
)

// MediaService stores uploaded files content-addressed. Identical content
// uploaded several times is kept once and shared between media records.
type MediaService interface {
	// Store persists the given media object on behalf of its owner.
	// Returns ErrMediaTooLarge if the media exceeds the configured size limit.
	Store(ctx context.Context, media domain.Media) error

	// Delete removes the media with the specified ID. Only the uploading user
	// may delete it. Returns whether the shared content was pruned as well,
	// and the ID of that content.
	Delete(ctx context.Context, mediaID domain.MediaID) (bool, domain.BlobID, error)

	// Fetch retrieves the media with the specified ID. Media is public.
	// Returns ErrMediaNotFound if there is no such media.
	Fetch(ctx context.Context, mediaID domain.MediaID) (domain.Media, error)

	// Stat returns the metadata of the media with the specified ID.
	Stat(ctx context.Context, mediaID domain.MediaID) (domain.MediaMeta, error)

	// MaxSize returns the maximum allowed file size for uploaded media in bytes.
	MaxSize() int64
}
