package imagesvc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"

	"github.com/mkrupp/joynest/internal/domain"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeWEBP = "image/webp"
)

//nolint:gochecknoglobals
var (
	imageExtTypes = map[string]string{
		".jpg":  MIMETypeJPEG,
		".jpeg": MIMETypeJPEG,
		".png":  MIMETypePNG,
		".webp": MIMETypeWEBP,
	}

	// canonical extensions used in media references
	imageTypeExts = map[string]string{
		MIMETypeJPEG: "jpg",
		MIMETypePNG:  "png",
		MIMETypeWEBP: "webp",
	}

	imageHeaderMatchers = map[string]func([]byte) bool{
		MIMETypeJPEG: func(b []byte) bool { return bytes.HasPrefix(b, []byte("\xFF\xD8\xFF")) },
		MIMETypePNG:  func(b []byte) bool { return bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1A\n")) },
		MIMETypeWEBP: func(b []byte) bool {
			return len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP"))
		},
	}

	imageDecoders = map[string]func(io.Reader) (image.Image, error){
		MIMETypeJPEG: jpeg.Decode,
		MIMETypePNG:  png.Decode,
		MIMETypeWEBP: webp.Decode,
	}

	// webp has no encoder; resized webp images are served as png
	imageEncoders = map[string]func(io.Writer, image.Image) error{
		MIMETypeJPEG: func(w io.Writer, i image.Image) error { return jpeg.Encode(w, i, &jpeg.Options{Quality: 85}) },
		MIMETypePNG:  png.Encode,
	}
)

// resizedType returns the MIME type a resized image of the given type is encoded as.
func resizedType(mimeType string) string {
	if _, ok := imageEncoders[mimeType]; ok {
		return mimeType
	}

	return MIMETypePNG
}

func getDecoderByType(mimeType string) (func(io.Reader) (image.Image, error), error) {
	decoder, ok := imageDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return decoder, nil
}

func getEncoderByType(mimeType string) (func(io.Writer, image.Image) error, error) {
	encoder, ok := imageEncoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return encoder, nil
}
