package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the decoded size of raster input. At four bytes per
// pixel this caps a single decode at roughly 256 MB.
const DefaultMaxPixels = 64_000_000

// ErrImageDecode marks input that is not a decodable image.
var ErrImageDecode = errors.New("image could not be decoded")

// hasCorrectPngSignature checks whether the provided data begins with a valid PNG signature
func hasCorrectPngSignature(data []byte) bool {
	// PNG signature: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) < 8 {
		return false
	}
	expected := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	return bytes.Equal(data[:8], expected)
}

// decodeImage decodes any raster format with a registered decoder.
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, format, nil
}

// decodeImageWithin decodes data only after its header shows at most
// maxPixels pixels. A non-positive maxPixels disables the check.
func decodeImageWithin(data []byte, maxPixels int) (image.Image, string, error) {
	w, h, err := DecodeSize(data)
	if err != nil {
		return nil, "", err
	}
	if err := checkPixelLimit(w, h, maxPixels); err != nil {
		return nil, "", err
	}
	return decodeImage(data)
}

func checkPixelLimit(w, h, maxPixels int) error {
	if maxPixels > 0 && int64(w)*int64(h) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds the limit of %d pixels", ErrImageDecode, w, h, maxPixels)
	}
	return nil
}

// DecodeSize returns the dimensions of an encoded raster image without
// decoding its pixels.
func DecodeSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// Pre-grow buffer to reduce re-allocations; rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createTargetCanvas(w, h int, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	return dst
}
