package service

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
)

const placeholderMIMEType = "image/png"

// SynthesizePlaceholder renders a deterministic gradient PNG for seed. It stands in for provider
// output when the provider cannot be reached.
func SynthesizePlaceholder(width, height int, seed string) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid placeholder size %dx%d", width, height)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	from := color.NRGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}
	to := color.NRGBA{R: uint8(sum >> 24), G: uint8(sum >> 32), B: uint8(sum >> 40), A: 255}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	span := width + height - 2
	if span == 0 {
		span = 1
	}
	stripe := max(width, height) / 16
	if stripe == 0 {
		stripe = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := lerp(from, to, x+y, span)
			if ((x+y)/stripe)%8 == 0 {
				c.A = 200
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func lerp(a, b color.NRGBA, i, n int) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(n-i) + int(y)*i) / n)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
