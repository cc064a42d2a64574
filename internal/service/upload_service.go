package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

// AllowedImageTypes maps accepted upload content types to their file extension.
var AllowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// StoredImage is an accepted upload. Data is kept for the provider call of the owning request.
type StoredImage struct {
	Key       string
	URL       string
	MIMEType  string
	Width     int
	Height    int
	SizeBytes int64
	Data      []byte
}

// UploadService validates uploaded images and stores them under a key private to the request.
type UploadService interface {
	Receive(ctx context.Context, userID string, data []byte, declaredMIMEType string) (*StoredImage, error)
}

type uploadService struct {
	store    ObjectStore
	maxBytes int64
	logger   zerolog.Logger
}

func NewUploadService(store ObjectStore, maxBytes int64, logger zerolog.Logger) UploadService {
	return &uploadService{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger.With().Str("service", "UploadService").Logger(),
	}
}

func (s *uploadService) Receive(ctx context.Context, userID string, data []byte, declaredMIMEType string) (*StoredImage, error) {
	info, err := InspectImage(data, declaredMIMEType, s.maxBytes)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("uploads/%s/%s.%s", userID, uuid.NewString(), AllowedImageTypes[info.MIMEType])
	url, err := s.store.Put(ctx, key, data, info.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	s.logger.Debug().
		Str("user_id", userID).
		Str("key", key).
		Str("mime_type", info.MIMEType).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("Upload stored")

	info.Key = key
	info.URL = url
	return info, nil
}

// InspectImage sniffs and decodes the header of data. It returns a *ValidationError for empty,
// oversized, unsupported or undecodable input. maxBytes <= 0 disables the size check.
func InspectImage(data []byte, declaredMIMEType string, maxBytes int64) (*StoredImage, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "file", Message: "an image file is required"}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds the %d byte limit", maxBytes)}
	}

	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(declaredMIMEType, ";", 2)[0]))
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("declared type %q is not an image", declared)}
	}

	detected := mimetype.Detect(data).String()
	if _, ok := AllowedImageTypes[detected]; !ok {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("unsupported image type %q", detected)}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: "image could not be decoded"}
	}
	return &StoredImage{
		MIMEType:  detected,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeBytes: int64(len(data)),
		Data:      data,
	}, nil
}
