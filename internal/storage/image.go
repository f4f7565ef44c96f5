package storage

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/disintegration/imaging"
)

var (
	ErrNotImage     = errors.New("file is not a supported image")
	ErrFileTooLarge = errors.New("file is too large")
)

// ImageProcessor приводит загруженные картинки к единому виду перед сохранением
type ImageProcessor struct {
	MaxDimension int
	MaxBytes     int64
}

// NormalizedImage готов к записи в BlobStore
type NormalizedImage struct {
	Data        []byte
	Ext         string
	ContentType string
}

// Normalize декодирует картинку, поворачивает по EXIF и уменьшает до MaxDimension.
// PNG остаётся PNG, остальное перекодируется в JPEG.
func (p ImageProcessor) Normalize(fh *multipart.FileHeader) (*NormalizedImage, error) {
	if fh == nil {
		return nil, ErrNotImage
	}
	if p.MaxBytes > 0 && fh.Size > p.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, fh.Filename, p.MaxBytes)
	}

	format, err := imaging.FormatFromFilename(fh.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, fh.Filename)
	}
	switch format {
	case imaging.JPEG, imaging.PNG, imaging.GIF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImage, fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, fh.Filename)
	}

	if limit := p.MaxDimension; limit > 0 {
		b := img.Bounds()
		if b.Dx() > limit || b.Dy() > limit {
			img = imaging.Fit(img, limit, limit, imaging.Lanczos)
		}
	}

	out := &NormalizedImage{Ext: ".jpg", ContentType: "image/jpeg"}
	target := imaging.JPEG
	if format == imaging.PNG {
		out.Ext, out.ContentType, target = ".png", "image/png", imaging.PNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}
