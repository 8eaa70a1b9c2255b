package imagesvc_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/repo/blob"
	"github.com/mkrupp/joynest/internal/svc/imagesvc"
	"github.com/mkrupp/joynest/internal/svc/mediasvc"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xff})
		}
	}

	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))

	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))

	return buf.Bytes()
}

func setupImageService(t *testing.T, cfg imagesvc.ImageConfig) *imagesvc.BlobImageService {
	t.Helper()

	factory := blob.FileSystemBlobRepositoryFactory(blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()})

	mediaSvc, err := mediasvc.NewBlobMediaService(context.Background(), factory, mediasvc.MediaConfig{MaxSize: 5242880})
	require.NoError(t, err)

	if cfg.Interpolator == "" {
		cfg.Interpolator = "catmullrom"
	}

	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = 4096
	}

	svc, err := imagesvc.NewBlobImageService(context.Background(), factory, mediaSvc, cfg)
	require.NoError(t, err)

	return svc
}

func asUser(userID uuid.UUID) context.Context {
	return context_.WithPrincipal(context.Background(), context_.Principal{UserID: userID, Username: "u"})
}

func TestBlobImageService_CheckUploadConstraints(t *testing.T) {
	t.Parallel()

	svc := setupImageService(t, imagesvc.ImageConfig{})
	pngData := pngBytes(t, 4, 4)
	jpegData := jpegBytes(t, 4, 4)
	webpData := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")

	tests := []struct {
		name     string
		filename string
		size     int64
		body     []byte
		want     string
		wantErr  error
	}{
		{name: "png", filename: "a.png", body: pngData, want: imagesvc.MIMETypePNG},
		{name: "jpeg upper case ext", filename: "a.JPEG", body: jpegData, want: imagesvc.MIMETypeJPEG},
		{name: "jpg", filename: "a.jpg", body: jpegData, want: imagesvc.MIMETypeJPEG},
		{name: "webp", filename: "a.webp", body: webpData, want: imagesvc.MIMETypeWEBP},
		{name: "header not read yet", filename: "a.png", want: imagesvc.MIMETypePNG},
		{name: "gif", filename: "a.gif", body: []byte("GIF89a"), wantErr: domain.ErrImageTypeNotSupported},
		{name: "no extension", filename: "image", body: pngData, wantErr: domain.ErrImageTypeNotSupported},
		{name: "png named jpg", filename: "a.jpg", body: pngData, wantErr: domain.ErrImageTypeMismatch},
		{name: "text named png", filename: "a.png", body: []byte("hello"), wantErr: domain.ErrImageTypeMismatch},
		{name: "too large", filename: "a.png", size: 5242881, body: pngData, wantErr: domain.ErrImageTooLarge},
		{name: "exactly max size", filename: "a.png", size: 5242880, body: pngData, want: imagesvc.MIMETypePNG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size := tt.size
			if size == 0 {
				size = int64(len(tt.body))
			}

			got, err := svc.CheckUploadConstraints(tt.filename, size, tt.body)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.KindValidation, domain.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlobImageService_Upload(t *testing.T) {
	t.Parallel()

	svc := setupImageService(t, imagesvc.ImageConfig{PublicBaseURL: "https://joynest.example/"})
	owner := uuid.New()

	_, err := svc.Upload(context.Background(), "a.png", pngBytes(t, 4, 4))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Upload(asUser(owner), "notes.txt", []byte("hello"))
	require.ErrorIs(t, err, domain.ErrImageTypeNotSupported)

	resp, err := svc.Upload(asUser(owner), "dir/chair.jpeg", jpegBytes(t, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, "https://joynest.example/media/"+resp.ID+".jpg", resp.URL)
	assert.Equal(t, "chair.jpeg", resp.Filename)
	assert.Equal(t, imagesvc.MIMETypeJPEG, resp.MIMEType)

	id, err := imagesvc.ParseReference(resp.URL)
	require.NoError(t, err)

	img, err := svc.Fetch(context.Background(), id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, resp.Size, img.Size())
	assert.Equal(t, imagesvc.MIMETypeJPEG, img.MIMEType())
}

func TestBlobImageService_FetchResized(t *testing.T) {
	t.Parallel()

	svc := setupImageService(t, imagesvc.ImageConfig{MaxDimension: 100})
	owner := uuid.New()

	resp, err := svc.Upload(asUser(owner), "a.png", pngBytes(t, 40, 20))
	require.NoError(t, err)

	id := domain.MediaID(resp.ID)

	resized, err := svc.Fetch(context.Background(), id, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, imagesvc.MIMETypePNG, resized.MIMEType())

	cfg, err := png.DecodeConfig(resized.Read())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)

	cached, err := svc.Fetch(context.Background(), id, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, resized.Bytes(), cached.Bytes())

	_, err = svc.Fetch(context.Background(), id, 101, 0)
	require.ErrorIs(t, err, imagesvc.ErrInvalidDimensions)

	_, err = svc.Fetch(context.Background(), id, -1, 0)
	require.ErrorIs(t, err, imagesvc.ErrInvalidDimensions)

	_, err = svc.Fetch(context.Background(), "unknown", 10, 0)
	require.ErrorIs(t, err, domain.ErrMediaNotFound)
}

func TestBlobImageService_Delete(t *testing.T) {
	t.Parallel()

	svc := setupImageService(t, imagesvc.ImageConfig{})
	owner := uuid.New()

	resp, err := svc.Upload(asUser(owner), "a.png", pngBytes(t, 20, 20))
	require.NoError(t, err)

	_, err = svc.Fetch(context.Background(), domain.MediaID(resp.ID), 5, 5)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(asUser(owner), "https://elsewhere.example/pic.png"), domain.ErrInvalidImageReference)
	require.ErrorIs(t, svc.Delete(asUser(uuid.New()), resp.URL), domain.ErrForbidden)
	require.ErrorIs(t, svc.Delete(context.Background(), resp.URL), domain.ErrUnauthorized)

	require.NoError(t, svc.Delete(asUser(owner), "https://joynest.example"+resp.URL))

	_, err = svc.Fetch(context.Background(), domain.MediaID(resp.ID), 0, 0)
	require.ErrorIs(t, err, domain.ErrMediaNotFound)

	require.ErrorIs(t, svc.Delete(asUser(owner), resp.URL), domain.ErrMediaNotFound)
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reference string
		want      domain.MediaID
		wantErr   bool
	}{
		{reference: "/media/abc123.png", want: "abc123"},
		{reference: "https://joynest.example/media/ABC123.jpg", want: "abc123"},
		{reference: "media/abc123.webp", want: "abc123"},
		{reference: " /media/abc123 ", want: "abc123"},
		{reference: "/api/media/abc123.png", want: "abc123"},
		{reference: "https://cdn.example/photos/abc123.png", wantErr: true},
		{reference: "/media/", wantErr: true},
		{reference: "/media/.png", wantErr: true},
		{reference: "abc123.png", wantErr: true},
		{reference: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			t.Parallel()

			got, err := imagesvc.ParseReference(tt.reference)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidImageReference)
				assert.False(t, imagesvc.IsLocalReference(tt.reference))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, imagesvc.IsLocalReference(tt.reference))
		})
	}
}
