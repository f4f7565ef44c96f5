package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore хранит файлы на диске, роутер раздаёт их по urlPrefix
type LocalStore struct {
	root      string
	urlPrefix string
}

func NewLocalStore(root, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{root: root, urlPrefix: "/" + strings.Trim(urlPrefix, "/")}, nil
}

func (s *LocalStore) Root() string      { return s.root }
func (s *LocalStore) URLPrefix() string { return s.urlPrefix }

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	full, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", err
	}

	return s.urlPrefix + "/" + key, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	full, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	base, err := s.pathFor(prefix)
	if err != nil {
		return nil, err
	}

	var objects []Object
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		objects = append(objects, Object{Key: key, Ref: s.urlPrefix + "/" + key, ModTime: info.ModTime()})
		return nil
	})
	return objects, err
}

// pathFor не даёт выйти за пределы root
func (s *LocalStore) pathFor(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
