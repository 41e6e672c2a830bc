// Package artcolor derives a colour swatch from thumbnail art: decode,
// quantize into a coarse histogram, then pick the buckets that best match
// a set of lightness/saturation targets.
package artcolor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/rs/zerolog"

	"github.com/mediawatch/backend/internal/media"
)

const (
	defaultMaxBytes   = 4 << 20
	defaultMaxSamples = 16384

	// Pixels with less alpha than this are ignored.
	minAlpha = 0x7d00
)

var (
	errTooLarge = errors.New("thumbnail exceeds size limit")
	errEmpty    = errors.New("no opaque pixels")
)

type Config struct {
	MaxBytes   int64 // largest thumbnail accepted, in bytes
	MaxSamples int   // pixels sampled per image
}

// Extractor implements the engine's art colour capability.
type Extractor struct {
	maxBytes   int64
	maxSamples int
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = defaultMaxSamples
	}
	return &Extractor{
		maxBytes:   cfg.MaxBytes,
		maxSamples: cfg.MaxSamples,
		logger:     logger.With().Str("component", "artcolor").Logger(),
	}
}

// Extract reads and decodes thumb and derives its palette. Every failure is
// an *media.ExtractionError.
func (x *Extractor) Extract(ctx context.Context, thumb media.Thumbnail) (media.Palette, error) {
	if thumb == nil {
		return media.Palette{}, &media.ExtractionError{Op: "open", Err: errors.New("no thumbnail")}
	}
	data, err := x.read(ctx, thumb)
	if err != nil {
		return media.Palette{}, err
	}
	if err := ctx.Err(); err != nil {
		return media.Palette{}, &media.ExtractionError{Op: "read", Err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return media.Palette{}, &media.ExtractionError{Op: "decode", Err: err}
	}

	hist := quantize(img, x.maxSamples)
	if len(hist) == 0 {
		return media.Palette{}, &media.ExtractionError{Op: "quantize", Err: errEmpty}
	}
	if err := ctx.Err(); err != nil {
		return media.Palette{}, &media.ExtractionError{Op: "quantize", Err: err}
	}

	p := derive(hist)
	x.logger.Debug().
		Str("format", format).
		Int("bytes", len(data)).
		Int("buckets", len(hist)).
		Str("dominant", p.Dominant.Hex()).
		Msg("Palette extracted")
	return p, nil
}

func (x *Extractor) read(ctx context.Context, thumb media.Thumbnail) ([]byte, error) {
	rc, err := thumb.Open(ctx)
	if err != nil {
		return nil, &media.ExtractionError{Op: "open", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, x.maxBytes+1))
	if err != nil {
		return nil, &media.ExtractionError{Op: "read", Err: err}
	}
	if int64(len(data)) > x.maxBytes {
		return nil, &media.ExtractionError{Op: "read", Err: fmt.Errorf("%w (%d bytes)", errTooLarge, x.maxBytes)}
	}
	if len(data) == 0 {
		return nil, &media.ExtractionError{Op: "read", Err: errors.New("empty thumbnail")}
	}
	return data, nil
}
