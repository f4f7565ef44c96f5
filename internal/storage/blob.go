package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrInvalidRef возвращается для ссылок, которые не принадлежат хранилищу
var ErrInvalidRef = errors.New("invalid blob reference")

// Object описывает сохранённый blob
type Object struct {
	Key     string
	Ref     string
	ModTime time.Time
}

// BlobStore хранит загруженные файлы и отдаёт стабильные ссылки на них.
// Ссылка сохраняется в базе как есть.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (ref string, err error)
	Delete(ctx context.Context, ref string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}
