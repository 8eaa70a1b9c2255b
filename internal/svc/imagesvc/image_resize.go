package imagesvc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/mkrupp/joynest/internal/domain"
)

var (
	// ErrUnknownInterpolator is returned when an unsupported interpolation method is specified.
	ErrUnknownInterpolator = errors.New("unknown interpolator")

	// ErrInvalidDimensions is returned for resize requests outside the allowed bounds.
	ErrInvalidDimensions = domain.NewError(domain.KindValidation, "invalid image dimensions")
)

//nolint:gochecknoglobals
var interpolMap = map[string]draw.Interpolator{
	"nearestneighbor": draw.NearestNeighbor,
	"catmullrom":      draw.CatmullRom,
	"bilinear":        draw.BiLinear,
	"approxbilinear":  draw.ApproxBiLinear,
}

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}

	return interpol, nil
}

// targetSize fills in a zero dimension from the other one, keeping the
// aspect ratio of bounds. Neither side ends up smaller than one pixel.
func targetSize(bounds image.Rectangle, width, height int) (int, int) {
	srcW, srcH := bounds.Dx(), bounds.Dy()

	switch {
	case width == 0:
		width = srcW * height / srcH
	case height == 0:
		height = srcH * width / srcW
	}

	return max(width, 1), max(height, 1)
}

// resizeImage scales an image of type ctype to width x height, where a zero
// dimension follows the aspect ratio. Returns the encoded image and its type,
// which differs from ctype for types without an encoder.
func resizeImage(data []byte, ctype string, width, height int, interpolator string) ([]byte, string, error) {
	interpol, err := getInterpolatorByName(interpolator)
	if err != nil {
		return nil, "", err
	}

	decoder, err := getDecoderByType(ctype)
	if err != nil {
		return nil, "", err
	}

	original, err := decoder(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	width, height = targetSize(original.Bounds(), width, height)

	bitmap := image.NewRGBA(image.Rect(0, 0, width, height))
	interpol.Scale(bitmap, bitmap.Bounds(), original, original.Bounds(), draw.Over, nil)

	outType := resizedType(ctype)

	encoder, err := getEncoderByType(outType)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer

	if err := encoder(&buf, bitmap); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), outType, nil
}
