package imagescale

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jo-hoe/goscratch/internal/backend/commands"
	"github.com/jo-hoe/goscratch/internal/backend/commandstructure"
)

const mimePNG = "image/png"

// ErrImageDecode is returned when the input is not a decodable image.
var ErrImageDecode = commands.ErrImageDecode

// Scaled is the re-encoded, size-bounded copy of an input image.
type Scaled struct {
	DataURL string
	PNG     []byte
	Width   int
	Height  int
}

// Result is the single completion value delivered by ScaleAsync.
type Result struct {
	Scaled *Scaled
	Err    error
}

// Scaler runs the configured command pipeline and hands out PNG data URLs.
type Scaler struct {
	invoker *commandstructure.CommandInvoker
}

// DefaultCommands converts to PNG and bounds the size to maxWidth x maxHeight.
// Raster input above maxPixels is refused before decoding.
func DefaultCommands(maxWidth, maxHeight, maxPixels int, interpolation string) []commandstructure.CommandConfig {
	return []commandstructure.CommandConfig{
		{Name: "PngConverterCommand", Params: map[string]any{
			"svgFallbackWidth":  maxWidth,
			"svgFallbackHeight": maxHeight,
			"maxWidth":          maxWidth,
			"maxHeight":         maxHeight,
			"maxPixels":         maxPixels,
		}},
		{Name: "BoundScaleCommand", Params: map[string]any{
			"maxWidth":      maxWidth,
			"maxHeight":     maxHeight,
			"maxPixels":     maxPixels,
			"interpolation": interpolation,
		}},
	}
}

// NewScaler builds the pipeline from configs using the default registry.
func NewScaler(configs []commandstructure.CommandConfig) (*Scaler, error) {
	cmds, err := commandstructure.DefaultRegistry.CreateAll(configs)
	if err != nil {
		return nil, fmt.Errorf("failed to build image pipeline: %w", err)
	}
	return &Scaler{invoker: commandstructure.NewCommandInvoker(cmds)}, nil
}

// Scale decodes, bounds and re-encodes input, which is either raw image
// bytes or a base64 data URL.
func (s *Scaler) Scale(input []byte) (*Scaled, error) {
	raw, err := DecodeSource(input)
	if err != nil {
		return nil, err
	}

	out, err := s.invoker.Execute(raw)
	if err != nil {
		return nil, err
	}

	w, h, err := commands.DecodeSize(out)
	if err != nil {
		return nil, err
	}
	return &Scaled{
		DataURL: EncodeDataURL(mimePNG, out),
		PNG:     out,
		Width:   w,
		Height:  h,
	}, nil
}

// ScaleAsync runs Scale on its own goroutine and delivers exactly one Result
// on the returned channel. There is no progress reporting and no cancellation.
func (s *Scaler) ScaleAsync(input []byte) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		scaled, err := s.Scale(input)
		if err != nil {
			slog.Warn("Scaler: image scaling failed", "error", err, "input_size_bytes", len(input))
		}
		done <- Result{Scaled: scaled, Err: err}
	}()
	return done
}

// Wait blocks for the completion of a ScaleAsync call. A done ctx only stops
// the waiting; the buffered result is dropped when it arrives.
func Wait(ctx context.Context, results <-chan Result) (*Scaled, error) {
	select {
	case r := <-results:
		return r.Scaled, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeSource returns the raw bytes of input. Data URLs are unwrapped;
// anything else is taken as raw image bytes.
func DecodeSource(input []byte) ([]byte, error) {
	if !hasDataPrefix(input) {
		return input, nil
	}
	_, data, err := ParseDataURL(string(input))
	return data, err
}

// ParseDataURL splits a base64 data URL into its media type and payload.
func ParseDataURL(url string) (string, []byte, error) {
	if !IsDataURL(url) {
		return "", nil, fmt.Errorf("%w: not a data URL", ErrImageDecode)
	}
	rest := url[len("data:"):]
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URL without payload", ErrImageDecode)
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 data URLs are supported", ErrImageDecode)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if mime == "" {
		mime = "text/plain"
	}
	return mime, data, nil
}

// IsDataURL reports whether source is an inline data URL.
func IsDataURL(source string) bool {
	return hasDataPrefix([]byte(source))
}

func hasDataPrefix(b []byte) bool {
	const prefix = "data:"
	return len(b) >= len(prefix) && strings.EqualFold(string(b[:len(prefix)]), prefix)
}

// IsDecodeError reports whether err stems from undecodable input.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrImageDecode)
}
