// Package imageprep normalizes uploaded scans into the inference-ready
// form: RGB, longest side capped, PNG-encoded. It is pure computation
// with no I/O; decode failures are ordinary errors for the caller to
// reject before any model call happens.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// register decoders for the upload formats we accept
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/linnemanlabs/medtriage/internal/llm"
)

// MaxSide bounds the longest image dimension sent to the model.
const MaxSide = 512

// Prepare decodes an uploaded image, converts it to RGB, downscales it
// so the longest side is at most MaxSide while preserving aspect ratio,
// and re-encodes it as PNG.
func Prepare(data []byte) (llm.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return llm.Image{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return llm.Image{}, fmt.Errorf("decode image: empty dimensions %dx%d", w, h)
	}

	if maxDim := max(w, h); maxDim > MaxSide {
		scale := float64(MaxSide) / float64(maxDim)
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	// drawing into RGBA also normalizes grayscale and paletted inputs
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return llm.Image{}, fmt.Errorf("encode png: %w", err)
	}

	return llm.Image{Data: buf.Bytes(), MediaType: "image/png"}, nil
}
