package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ImageRequest is one image-to-image transformation.
type ImageRequest struct {
	Prompt        string
	Image         []byte
	ImageMIMEType string
	Width         int
	Height        int
}

// ImageResult is a produced image. Data is set for inline results; URL when the provider
// hosts the output itself.
type ImageResult struct {
	Data     []byte
	MIMEType string
	URL      string
	Model    string
}

// ImageProvider transforms an image and a prompt into a new image.
// Failures are reported as *ProviderError.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// DefaultImageSize is used when the caller does not ask for one.
const DefaultImageSize = "1024x1024"

// SupportedImageSizes are the output sizes callers may request.
var SupportedImageSizes = []string{"512x512", "768x768", "1024x1024", "768x1024", "1024x768"}

// ParseImageSize parses "WxH" for a supported size. An empty size yields the default.
func ParseImageSize(size string) (width, height int, normalized string, err error) {
	size = strings.ToLower(strings.TrimSpace(size))
	if size == "" {
		size = DefaultImageSize
	}
	supported := false
	for _, s := range SupportedImageSizes {
		if s == size {
			supported = true
			break
		}
	}
	if !supported {
		return 0, 0, "", &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("must be one of %s", strings.Join(SupportedImageSizes, ", ")),
		}
	}
	w, h, _ := strings.Cut(size, "x")
	width, _ = strconv.Atoi(w)
	height, _ = strconv.Atoi(h)
	return width, height, size, nil
}
