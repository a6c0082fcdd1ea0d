package commands

import (
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/jo-hoe/goscratch/internal/backend/commandstructure"
	"golang.org/x/image/draw"
)

const (
	DefaultMaxWidth      = 600
	DefaultMaxHeight     = 600
	DefaultInterpolation = "catmullrom"
)

var interpolators = map[string]draw.Interpolator{
	"nearest":        draw.NearestNeighbor,
	"approxbilinear": draw.ApproxBiLinear,
	"bilinear":       draw.BiLinear,
	"catmullrom":     draw.CatmullRom,
}

// BoundScaleParams represents typed parameters for the bound scale command
type BoundScaleParams struct {
	MaxWidth      int
	MaxHeight     int
	MaxPixels     int
	Interpolation string
}

// NewBoundScaleParamsFromMap creates BoundScaleParams from a generic map
func NewBoundScaleParamsFromMap(params map[string]any) (*BoundScaleParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"maxWidth", "maxHeight"}); err != nil {
		return nil, err
	}

	p := &BoundScaleParams{
		MaxWidth:      commandstructure.GetIntParam(params, "maxWidth", 0),
		MaxHeight:     commandstructure.GetIntParam(params, "maxHeight", 0),
		MaxPixels:     commandstructure.GetIntParam(params, "maxPixels", DefaultMaxPixels),
		Interpolation: strings.ToLower(commandstructure.GetStringParam(params, "interpolation", DefaultInterpolation)),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *BoundScaleParams) validate() error {
	if p.MaxWidth <= 0 {
		return fmt.Errorf("maxWidth must be positive, got %d", p.MaxWidth)
	}
	if p.MaxHeight <= 0 {
		return fmt.Errorf("maxHeight must be positive, got %d", p.MaxHeight)
	}
	if p.MaxPixels < 0 {
		return fmt.Errorf("maxPixels must not be negative, got %d", p.MaxPixels)
	}
	if _, ok := interpolators[p.Interpolation]; !ok {
		return fmt.Errorf("unknown interpolation %q", p.Interpolation)
	}
	return nil
}

// BoundScaleCommand shrinks an image until it fits into MaxWidth x MaxHeight,
// preserving the aspect ratio. Images that already fit are left untouched.
type BoundScaleCommand struct {
	name   string
	params *BoundScaleParams
}

// NewBoundScaleCommand creates a new bound scale command from configuration parameters
func NewBoundScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewBoundScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &BoundScaleCommand{
		name:   "BoundScaleCommand",
		params: typedParams,
	}, nil
}

// NewBoundScaleCommandWithParams creates a new bound scale command from concrete typed parameters
func NewBoundScaleCommandWithParams(maxWidth, maxHeight int, interpolation string) (*BoundScaleCommand, error) {
	p := &BoundScaleParams{
		MaxWidth:      maxWidth,
		MaxHeight:     maxHeight,
		MaxPixels:     DefaultMaxPixels,
		Interpolation: strings.ToLower(interpolation),
	}
	if p.Interpolation == "" {
		p.Interpolation = DefaultInterpolation
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &BoundScaleCommand{name: "BoundScaleCommand", params: p}, nil
}

func (c *BoundScaleCommand) Name() string {
	return c.name
}

func (c *BoundScaleCommand) GetParams() *BoundScaleParams {
	return c.params
}

// Execute scales the image down into the bounding box and encodes it as PNG
func (c *BoundScaleCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("BoundScaleCommand: decoding image",
		"input_size_bytes", len(imageData))

	img, _, err := decodeImageWithin(imageData, c.params.MaxPixels)
	if err != nil {
		slog.Warn("BoundScaleCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	scaledWidth, scaledHeight := ComputeBoundedDimensions(originalWidth, originalHeight, c.params.MaxWidth, c.params.MaxHeight)
	if scaledWidth == originalWidth && scaledHeight == originalHeight {
		slog.Debug("BoundScaleCommand: image fits into bounds; skipping scaling",
			"width", originalWidth,
			"height", originalHeight)
		return imageData, nil
	}

	slog.Debug("BoundScaleCommand: scaling image",
		"original_width", originalWidth,
		"original_height", originalHeight,
		"scaled_width", scaledWidth,
		"scaled_height", scaledHeight,
		"interpolation", c.params.Interpolation)

	dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	interpolators[c.params.Interpolation].Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	out, err := encodePNG(dst)
	if err != nil {
		slog.Error("BoundScaleCommand: failed to encode scaled image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}

	slog.Debug("BoundScaleCommand: scaling complete",
		"output_size_bytes", len(out))

	return out, nil
}

// ComputeBoundedDimensions returns the size of an originalWidth x
// originalHeight image shrunk to fit into maxWidth x maxHeight. Wide images
// scale by width, tall and square images by height; sizes never grow and
// fractional pixels are truncated.
func ComputeBoundedDimensions(originalWidth, originalHeight, maxWidth, maxHeight int) (int, int) {
	w, h := originalWidth, originalHeight
	if w <= 0 || h <= 0 {
		return w, h
	}

	if w > h {
		if w > maxWidth {
			h = h * maxWidth / w
			w = maxWidth
		}
	} else if h > maxHeight {
		w = w * maxHeight / h
		h = maxHeight
	}

	// With a non-square box the secondary axis can still overflow.
	if w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	if h > maxHeight {
		w = w * maxHeight / h
		h = maxHeight
	}

	return max(w, 1), max(h, 1)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("BoundScaleCommand", NewBoundScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register BoundScaleCommand: %v", err))
	}
}
