package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
)

// Uploader связывает хранилище и обработку картинок
type Uploader struct {
	Store  BlobStore
	Images ImageProcessor
}

func NewUploader(store BlobStore, images ImageProcessor) *Uploader {
	return &Uploader{Store: store, Images: images}
}

// Stage начинает набор загрузок, которые будут удалены, если их не закоммитить
func (u *Uploader) Stage() *Staging {
	return &Staging{uploader: u}
}

// DeleteRefs удаляет ссылки по одной, ошибки только логируются: остатки подберёт reaper
func (u *Uploader) DeleteRefs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := u.Store.Delete(ctx, ref); err != nil {
			slog.Warn("blob delete failed", "ref", ref, "error", err)
		}
	}
}

// Staging владеет загруженными файлами до Commit.
// Использование: st := up.Stage(); defer st.Rollback(ctx); ...; st.Commit()
type Staging struct {
	uploader  *Uploader
	refs      []string
	committed bool
}

// PutImage нормализует картинку и кладёт её под folder/
func (s *Staging) PutImage(ctx context.Context, folder string, fh *multipart.FileHeader) (string, error) {
	img, err := s.uploader.Images.Normalize(fh)
	if err != nil {
		return "", err
	}

	key := GenerateKey(folder, img.Ext)
	ref, err := s.uploader.Store.Put(ctx, key, bytes.NewReader(img.Data), img.ContentType)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}

	s.refs = append(s.refs, ref)
	return ref, nil
}

func (s *Staging) Refs() []string {
	return append([]string(nil), s.refs...)
}

// Commit передаёт владение файлами вызывающему
func (s *Staging) Commit() {
	s.committed = true
}

func (s *Staging) Rollback(ctx context.Context) {
	if s.committed || len(s.refs) == 0 {
		return
	}
	s.uploader.DeleteRefs(context.WithoutCancel(ctx), s.refs)
	s.refs = nil
}

// GenerateKey строит уникальный ключ вида folder/20260102-<uuid>.jpg
func GenerateKey(folder, ext string) string {
	return fmt.Sprintf("%s/%s-%s%s", folder, time.Now().UTC().Format("20060102"), uuid.New().String(), ext)
}
