package mediasvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/repo/blob"
)

// BlobMediaService implements MediaService on top of blob storage.
// Content lives in the data repository under its hash, metadata in the meta
// repository under the media ID. A backref blob next to each data blob lists
// the media IDs sharing it, so content is deleted with its last reference.
type BlobMediaService struct {
	dataRepo    blob.Repository
	metaRepo    blob.Repository
	backrefRepo blob.Repository
	cfg         MediaConfig
	log         logging.Logger
}

var _ MediaService = (*BlobMediaService)(nil)

// NewBlobMediaService creates a new BlobMediaService with the given configuration.
// Returns an error if any repository initialization fails.
func NewBlobMediaService(
	ctx context.Context,
	repoFactory blob.RepositoryFactory,
	cfg MediaConfig,
) (*BlobMediaService, error) {
	dataRepo, err := repoFactory(ctx, "data", "bin")
	if err != nil {
		return nil, fmt.Errorf("new data repository: %w", err)
	}

	backrefRepo, err := repoFactory(ctx, "data", "refs")
	if err != nil {
		return nil, fmt.Errorf("new backref repository: %w", err)
	}

	metaRepo, err := repoFactory(ctx, "meta", "json")
	if err != nil {
		return nil, fmt.Errorf("new meta repository: %w", err)
	}

	return &BlobMediaService{
		dataRepo:    dataRepo,
		metaRepo:    metaRepo,
		backrefRepo: backrefRepo,
		cfg:         cfg,
		log:         logging.GetLogger("svc.mediasvc.blob_media_service"),
	}, nil
}

// MaxSize implements MediaService.MaxSize.
func (svc *BlobMediaService) MaxSize() int64 {
	return svc.cfg.MaxSize
}

// Store implements MediaService.Store. Storing the same media twice is a no-op.
func (svc *BlobMediaService) Store(ctx context.Context, media domain.Media) (err error) {
	log := svc.log.With(logging.Group("media",
		"id", media.ID(),
		"size", media.Size(),
		"type", media.MIMEType(),
		"owner", media.Owner(),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "media store failed", "error", err)
		} else {
			log.DebugContext(ctx, "media stored")
		}
	}()

	if media.Owner() == "" {
		return fmt.Errorf("%w: media has no owner", domain.ErrUnauthorized)
	}

	if media.Size() > svc.cfg.MaxSize {
		return fmt.Errorf("%w: %d exceeds %d", domain.ErrMediaTooLarge, media.Size(), svc.cfg.MaxSize)
	}

	metaBlob, err := media.Meta().AsBlob()
	if err != nil {
		return fmt.Errorf("convert meta to blob: %w", err)
	}

	unlockMeta, err := svc.metaRepo.Lock(ctx, metaBlob.ID, true)
	if err != nil {
		return fmt.Errorf("lock meta: %w", err)
	}
	defer unlockMeta()

	dataBlob := media.AsBlob()

	unlockData, err := svc.dataRepo.Lock(ctx, dataBlob.ID, true)
	if err != nil {
		return fmt.Errorf("lock data: %w", err)
	}
	defer unlockData()

	if !svc.dataRepo.Exists(ctx, dataBlob.ID) {
		if err := svc.dataRepo.Store(ctx, dataBlob); err != nil {
			return fmt.Errorf("store data: %w", err)
		}
	}

	if svc.metaRepo.Exists(ctx, metaBlob.ID) {
		return nil
	}

	if err := svc.metaRepo.Store(ctx, metaBlob); err != nil {
		return fmt.Errorf("store meta: %w", err)
	}

	if err := svc.addBackref(ctx, dataBlob.ID, metaBlob.ID); err != nil {
		return fmt.Errorf("add backref: %w", err)
	}

	return nil
}

// Delete implements MediaService.Delete. Anonymous callers get
// ErrUnauthorized, callers other than the uploader ErrForbidden.
func (svc *BlobMediaService) Delete(
	ctx context.Context,
	mediaID domain.MediaID,
) (pruned bool, dataID domain.BlobID, err error) {
	log := svc.log.With(logging.Group("media", "id", mediaID))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "media delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "media deleted", "pruned", pruned)
		}
	}()

	callerID, ok := context_.UserIDFromContext(ctx)
	if !ok {
		return false, "", domain.ErrUnauthorized
	}

	unlockMeta, err := svc.metaRepo.Lock(ctx, mediaID, true)
	if err != nil {
		return false, "", fmt.Errorf("lock meta: %w", err)
	}
	defer unlockMeta()

	mediaMeta, err := svc.fetchMeta(ctx, mediaID)
	if err != nil {
		return false, "", err
	}

	dataID = domain.BlobID(mediaMeta.Hash)
	log = log.With(logging.Group("media", "data_id", dataID, "owner", mediaMeta.Owner))

	if mediaMeta.Owner != callerID.String() {
		return false, "", fmt.Errorf("%w: user %s does not own media", domain.ErrForbidden, callerID)
	}

	unlockData, err := svc.dataRepo.Lock(ctx, dataID, true)
	if err != nil {
		return false, dataID, fmt.Errorf("lock data: %w", err)
	}
	defer unlockData()

	pruned, err = svc.removeBackref(ctx, dataID, mediaID)
	if err != nil {
		return false, dataID, fmt.Errorf("remove backref: %w", err)
	}

	if err := svc.metaRepo.Delete(ctx, mediaID); err != nil {
		return pruned, dataID, fmt.Errorf("delete meta: %w", err)
	}

	return pruned, dataID, nil
}

// Fetch implements MediaService.Fetch.
func (svc *BlobMediaService) Fetch(ctx context.Context, mediaID domain.MediaID) (media domain.Media, err error) {
	log := svc.log.With(logging.Group("media", "id", mediaID))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "media fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "media fetched", "size", media.Size())
		}
	}()

	unlockMeta, err := svc.metaRepo.Lock(ctx, mediaID, false)
	if err != nil {
		return domain.Media{}, fmt.Errorf("lock meta: %w", err)
	}
	defer unlockMeta()

	mediaMeta, err := svc.fetchMeta(ctx, mediaID)
	if err != nil {
		return domain.Media{}, err
	}

	dataID := domain.BlobID(mediaMeta.Hash)

	unlockData, err := svc.dataRepo.Lock(ctx, dataID, false)
	if err != nil {
		return domain.Media{}, fmt.Errorf("lock data: %w", err)
	}
	defer unlockData()

	dataBlob, err := svc.dataRepo.Fetch(ctx, dataID)
	if err != nil {
		return domain.Media{}, fmt.Errorf("fetch data: %w", err)
	}

	return domain.NewMedia(dataBlob.Bytes(), mediaMeta), nil
}

// Stat implements MediaService.Stat.
func (svc *BlobMediaService) Stat(ctx context.Context, mediaID domain.MediaID) (domain.MediaMeta, error) {
	unlockMeta, err := svc.metaRepo.Lock(ctx, mediaID, false)
	if err != nil {
		return domain.MediaMeta{}, fmt.Errorf("lock meta: %w", err)
	}
	defer unlockMeta()

	return svc.fetchMeta(ctx, mediaID)
}

func (svc *BlobMediaService) fetchMeta(ctx context.Context, mediaID domain.MediaID) (domain.MediaMeta, error) {
	metaBlob, err := svc.metaRepo.Fetch(ctx, mediaID)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return domain.MediaMeta{}, fmt.Errorf("%w: %s", domain.ErrMediaNotFound, mediaID)
		}

		return domain.MediaMeta{}, fmt.Errorf("fetch meta: %w", err)
	}

	mediaMeta, err := domain.NewMediaMetaFromBlob(metaBlob)
	if err != nil {
		return domain.MediaMeta{}, fmt.Errorf("convert meta blob: %w", err)
	}

	return mediaMeta, nil
}

func (svc *BlobMediaService) fetchBackrefs(ctx context.Context, dataID domain.BlobID) ([]domain.BlobID, error) {
	backrefBlob, err := svc.backrefRepo.Fetch(ctx, dataID)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("fetch backrefs: %w", err)
	}

	var backrefs []domain.BlobID

	for _, line := range bytes.Split(backrefBlob.Bytes(), []byte("\n")) {
		if len(line) > 0 {
			backrefs = append(backrefs, domain.BlobID(line))
		}
	}

	return backrefs, nil
}

func (svc *BlobMediaService) storeBackrefs(ctx context.Context, dataID domain.BlobID, backrefs []domain.BlobID) error {
	var buf bytes.Buffer

	for _, id := range backrefs {
		buf.WriteString(id.String())
		buf.WriteByte('\n')
	}

	if err := svc.backrefRepo.Store(ctx, domain.NewBlob(dataID, buf.Bytes())); err != nil {
		return fmt.Errorf("store backrefs: %w", err)
	}

	return nil
}

func (svc *BlobMediaService) addBackref(ctx context.Context, dataID, mediaID domain.BlobID) error {
	backrefs, err := svc.fetchBackrefs(ctx, dataID)
	if err != nil {
		return err
	}

	if slices.Contains(backrefs, mediaID) {
		return nil
	}

	return svc.storeBackrefs(ctx, dataID, append(backrefs, mediaID))
}

// removeBackref drops mediaID from the backrefs of dataID and deletes the
// content once nothing references it. Reports whether it was deleted.
func (svc *BlobMediaService) removeBackref(ctx context.Context, dataID, mediaID domain.BlobID) (bool, error) {
	backrefs, err := svc.fetchBackrefs(ctx, dataID)
	if err != nil {
		return false, err
	}

	backrefs = slices.DeleteFunc(backrefs, func(id domain.BlobID) bool { return id == mediaID })

	if len(backrefs) > 0 {
		return false, svc.storeBackrefs(ctx, dataID, backrefs)
	}

	if err := svc.dataRepo.Delete(ctx, dataID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return false, fmt.Errorf("delete data: %w", err)
	}

	if err := svc.backrefRepo.Delete(ctx, dataID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return false, fmt.Errorf("delete backrefs: %w", err)
	}

	return true, nil
}
