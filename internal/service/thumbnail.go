package service

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Thumbnail bounds for listing photos shown in grid views.
const (
	thumbnailMaxWidth    = 480
	thumbnailMaxHeight   = 480
	thumbnailJPEGQuality = 85
)

// ThumbnailProcessor generates thumbnails from listing photos.
type ThumbnailProcessor interface {
	// GenerateThumbnail resizes the image to fit within the thumbnail bounds,
	// preserving aspect ratio. Output is always JPEG.
	GenerateThumbnail(data io.Reader) ([]byte, error)
}

type imagingProcessor struct{}

// NewImagingProcessor creates a thumbnail processor backed by the imaging
// library.
func NewImagingProcessor() ThumbnailProcessor {
	return &imagingProcessor{}
}

func (p *imagingProcessor) GenerateThumbnail(data io.Reader) ([]byte, error) {
	img, _, err := image.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailMaxWidth, thumbnailMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
