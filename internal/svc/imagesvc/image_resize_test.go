package imagesvc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetSize(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 200, 100)

	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{name: "width only", width: 50, wantW: 50, wantH: 25},
		{name: "height only", height: 50, wantW: 100, wantH: 50},
		{name: "both", width: 30, height: 30, wantW: 30, wantH: 30},
		{name: "never below one pixel", width: 1, wantW: 1, wantH: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w, h := targetSize(bounds, tt.width, tt.height)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestResizedType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MIMETypeJPEG, resizedType(MIMETypeJPEG))
	assert.Equal(t, MIMETypePNG, resizedType(MIMETypePNG))
	assert.Equal(t, MIMETypePNG, resizedType(MIMETypeWEBP))
}

func TestResizeImage(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		for y := range 20 {
			src.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 12), B: 0x80, A: 0xff})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	resized, outType, err := resizeImage(buf.Bytes(), MIMETypePNG, 10, 0, "catmullrom")
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, outType)

	cfg, err := png.DecodeConfig(bytes.NewReader(resized))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)

	_, _, err = resizeImage(buf.Bytes(), MIMETypePNG, 10, 0, "lanczos")
	require.ErrorIs(t, err, ErrUnknownInterpolator)

	_, _, err = resizeImage([]byte("\x89PNG\r\n\x1a\ngarbage"), MIMETypePNG, 10, 0, "bilinear")
	require.Error(t, err)
}

func TestImageHeaderMatchers(t *testing.T) {
	t.Parallel()

	webpHeader := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")

	assert.True(t, imageHeaderMatchers[MIMETypeWEBP](webpHeader))
	assert.False(t, imageHeaderMatchers[MIMETypeWEBP]([]byte("RIFF\x24\x00\x00\x00WAVE")))
	assert.False(t, imageHeaderMatchers[MIMETypeWEBP]([]byte("RIFF")))
	assert.True(t, imageHeaderMatchers[MIMETypeJPEG]([]byte("\xFF\xD8\xFF\xE0")))
	assert.False(t, imageHeaderMatchers[MIMETypePNG](webpHeader))
}
