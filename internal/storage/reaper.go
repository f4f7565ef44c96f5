package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ReferenceSource отдаёт все ссылки, которые ещё используются
type ReferenceSource interface {
	ListEventImages(ctx context.Context) ([]string, error)
	ListProfileImages(ctx context.Context) ([]string, error)
}

// Reaper удаляет файлы, на которые больше никто не ссылается.
// Свежие файлы (моложе Grace) не трогаем: их запись в базу может ещё не закоммититься.
type Reaper struct {
	Store    BlobStore
	Refs     ReferenceSource
	Grace    time.Duration
	Prefixes []string
	DryRun   bool

	now func() time.Time
}

func NewReaper(store BlobStore, refs ReferenceSource, grace time.Duration, prefixes ...string) *Reaper {
	return &Reaper{Store: store, Refs: refs, Grace: grace, Prefixes: prefixes, now: time.Now}
}

// RunOnce выполняет один проход и возвращает число удалённых файлов
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	inUse := make(map[string]bool)

	eventRefs, err := r.Refs.ListEventImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list event images: %w", err)
	}
	profileRefs, err := r.Refs.ListProfileImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profile images: %w", err)
	}
	for _, ref := range append(eventRefs, profileRefs...) {
		inUse[ref] = true
	}

	threshold := r.now().Add(-r.Grace)
	deleted := 0
	for _, prefix := range r.Prefixes {
		objects, err := r.Store.List(ctx, prefix)
		if err != nil {
			return deleted, fmt.Errorf("list %q: %w", prefix, err)
		}

		for _, obj := range objects {
			if inUse[obj.Ref] || obj.ModTime.After(threshold) {
				continue
			}
			if r.DryRun {
				slog.Info("reaper: would delete orphan", "ref", obj.Ref)
				continue
			}
			if err := r.Store.Delete(ctx, obj.Ref); err != nil {
				slog.Warn("reaper: delete failed", "ref", obj.Ref, "error", err)
				continue
			}
			deleted++
		}
	}

	return deleted, nil
}

// StartReaper регистрирует проход по расписанию и запускает cron
func StartReaper(schedule string, r *Reaper) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()

		n, err := r.RunOnce(ctx)
		if err != nil {
			slog.Error("reaper run failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("reaper deleted orphaned blobs", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add reaper schedule %q: %w", schedule, err)
	}

	slog.Info("reaper started", "schedule", schedule, "grace", r.Grace, "prefixes", r.Prefixes)
	c.Start()
	return c, nil
}
