package commands

import (
	"bytes"
	"fmt"
	"image/color"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/jo-hoe/goscratch/internal/backend/commandstructure"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	// svgSniffBytes limits how much of the input is inspected for an <svg> tag
	svgSniffBytes = 4096
	// maxSVGDimension caps a declared SVG size before any arithmetic on it
	maxSVGDimension = 1 << 20
)

var svgSizeAttr = regexp.MustCompile(`(?i)(?:^|\s)(width|height)\s*=\s*["']\s*([0-9]+(?:\.[0-9]+)?)`)

// PngConverterCommand turns any supported image format into PNG. Raster
// input larger than maxPixels is rejected before its pixels are decoded, and
// SVG input is rendered straight into the maxWidth x maxHeight box when one
// is set.
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
	maxWidth          int
	maxHeight         int
	maxPixels         int
}

// NewPngConverterCommand creates a new PNG converter command
func NewPngConverterCommand(params map[string]any) (commandstructure.Command, error) {
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}
	maxW := commandstructure.GetIntParam(params, "maxWidth", 0)
	maxH := commandstructure.GetIntParam(params, "maxHeight", 0)
	if maxW < 0 || maxH < 0 {
		return nil, fmt.Errorf("max size must not be negative, got %dx%d", maxW, maxH)
	}
	maxPixels := commandstructure.GetIntParam(params, "maxPixels", DefaultMaxPixels)
	if maxPixels < 0 {
		return nil, fmt.Errorf("maxPixels must not be negative, got %d", maxPixels)
	}

	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
		maxWidth:          maxW,
		maxHeight:         maxH,
		maxPixels:         maxPixels,
	}, nil
}

func (c *PngConverterCommand) Name() string {
	return c.name
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("PngConverterCommand: start",
		"input_size_bytes", len(imageData))

	// Valid PNG input passes through byte-for-byte
	if hasCorrectPngSignature(imageData) {
		w, h, err := DecodeSize(imageData)
		if err != nil {
			slog.Warn("PngConverterCommand: PNG signature but unreadable header", "error", err)
			return nil, err
		}
		if err := checkPixelLimit(w, h, c.maxPixels); err != nil {
			slog.Warn("PngConverterCommand: PNG too large", "error", err)
			return nil, err
		}
		slog.Debug("PngConverterCommand: PNG detected; returning original bytes")
		return imageData, nil
	}

	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}

	img, currentFormat, err := decodeImageWithin(imageData, c.maxPixels)
	if err != nil {
		slog.Warn("PngConverterCommand: failed to decode image", "error", err)
		return nil, err
	}

	slog.Debug("PngConverterCommand: decoded raster image",
		"current_format", currentFormat,
		"orig_width", img.Bounds().Dx(),
		"orig_height", img.Bounds().Dy())

	out, err := encodePNG(img)
	if err != nil {
		slog.Error("PngConverterCommand: failed to encode image to PNG", "error", err)
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	slog.Debug("PngConverterCommand: raster conversion complete", "output_size_bytes", len(out))
	return out, nil
}

func (c *PngConverterCommand) convertSVG(imageData []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(imageData))
	if err != nil {
		slog.Warn("PngConverterCommand: failed to parse SVG", "error", err)
		return nil, fmt.Errorf("%w: failed to parse SVG: %v", ErrImageDecode, err)
	}

	w, h, ok := parseSvgExplicitSize(imageData)
	switch {
	case ok:
		slog.Debug("PngConverterCommand: SVG has explicit size", "width", w, "height", h)
	case c.svgFallbackWidth > 0 && c.svgFallbackHeight > 0:
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
		slog.Debug("PngConverterCommand: SVG lacks explicit size; using fallback", "width", w, "height", h)
	case icon.ViewBox.W >= 1 && icon.ViewBox.H >= 1:
		w, h = int(min(icon.ViewBox.W, maxSVGDimension)), int(min(icon.ViewBox.H, maxSVGDimension))
		slog.Debug("PngConverterCommand: SVG sized from viewBox", "width", w, "height", h)
	default:
		return nil, fmt.Errorf("%w: SVG has no size and no fallback size is configured", ErrImageDecode)
	}

	if c.maxWidth > 0 && c.maxHeight > 0 {
		bw, bh := ComputeBoundedDimensions(w, h, c.maxWidth, c.maxHeight)
		if bw != w || bh != h {
			slog.Debug("PngConverterCommand: rendering SVG into bounds",
				"declared_width", w, "declared_height", h, "width", bw, "height", bh)
		}
		w, h = bw, bh
	}
	if err := checkPixelLimit(w, h, c.maxPixels); err != nil {
		slog.Warn("PngConverterCommand: SVG too large", "error", err)
		return nil, err
	}

	out, err := renderSVGToPNG(icon, w, h)
	if err != nil {
		slog.Error("PngConverterCommand: failed to render SVG", "error", err)
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	slog.Debug("PngConverterCommand: SVG render complete", "output_size_bytes", len(out))
	return out, nil
}

// parseSvgExplicitSize extracts width and height attributes of the root <svg> tag.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	head := data
	if len(head) > svgSniffBytes*2 {
		head = head[:svgSniffBytes*2]
	}
	start := bytes.Index(bytes.ToLower(head), []byte("<svg"))
	if start < 0 {
		return 0, 0, false
	}
	tag := head[start:]
	if end := bytes.IndexByte(tag, '>'); end >= 0 {
		tag = tag[:end]
	}

	var w, h int
	for _, m := range svgSizeAttr.FindAllSubmatch(tag, -1) {
		v, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil || v < 1 {
			continue
		}
		v = min(v, maxSVGDimension)
		switch string(bytes.ToLower(m[1])) {
		case "width":
			w = int(v)
		case "height":
			h = int(v)
		}
	}
	return w, h, w > 0 && h > 0
}

// isSVGData performs a lightweight detection of SVG content from raw bytes.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := len(data)
	if n > svgSniffBytes {
		n = svgSniffBytes
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// renderSVGToPNG rasterizes a parsed SVG onto a white canvas of the given size.
func renderSVGToPNG(icon *oksvg.SvgIcon, targetW, targetH int) ([]byte, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := createTargetCanvas(targetW, targetH, color.RGBA{255, 255, 255, 255})
	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	return encodePNG(dst)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}
