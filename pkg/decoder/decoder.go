package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrInvalidContentType = errors.New("file must be an image")

// DefaultMaxPixels is the largest width*height Decode accepts.
const DefaultMaxPixels = 89_478_485

// ErrTooManyPixels is the cause of a DecodeError for images whose header
// declares more pixels than the limit.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// DecodeError wraps the codec failure for bytes that were declared as an
// image but could not be read as one.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot identify image file: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsImageContentType reports whether a declared content type names an image.
func IsImageContentType(contentType string) bool {
	return contentType != "" && strings.HasPrefix(contentType, "image/")
}

// Decode turns uploaded bytes into an opaque 8-bit RGB image. The returned
// *image.NRGBA always has alpha 255, whatever the source color model was
// (gray, paletted, CMYK, with or without alpha).
func Decode(data []byte, contentType string) (*image.NRGBA, error) {
	return DecodeLimited(data, contentType, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel budget. The header is read
// first so an oversized image is rejected before its pixel buffer is
// allocated. A non-positive maxPixels disables the check.
func DecodeLimited(data []byte, contentType string, maxPixels int64) (*image.NRGBA, error) {
	if !IsImageContentType(contentType) {
		return nil, ErrInvalidContentType
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	if maxPixels > 0 && cfg.Height > 0 && int64(cfg.Width) > maxPixels/int64(cfg.Height) {
		return nil, &DecodeError{Cause: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}

	return toRGB(img), nil
}

func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
