package storage

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/unimeet/internal/storage/storagetest"
)

func TestImageProcessor_DownscalesLargeImages(t *testing.T) {
	p := ImageProcessor{MaxDimension: 100}
	fh := storagetest.FileHeader(t, "images", "big.png", storagetest.PNG(t, 400, 200))

	out, err := p.Normalize(fh)
	require.NoError(t, err)
	assert.Equal(t, ".png", out.Ext)
	assert.Equal(t, "image/png", out.ContentType)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestImageProcessor_KeepsSmallImages(t *testing.T) {
	p := ImageProcessor{MaxDimension: 1000}
	fh := storagetest.FileHeader(t, "images", "small.png", storagetest.PNG(t, 20, 10))

	out, err := p.Normalize(fh)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestImageProcessor_Rejects(t *testing.T) {
	p := ImageProcessor{MaxDimension: 100, MaxBytes: 1024}

	_, err := p.Normalize(storagetest.FileHeader(t, "images", "notes.txt", []byte("hello")))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = p.Normalize(storagetest.FileHeader(t, "images", "fake.png", []byte("not really a png")))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = p.Normalize(storagetest.FileHeader(t, "images", "huge.png", make([]byte, 4096)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
