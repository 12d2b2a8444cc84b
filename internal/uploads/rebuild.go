package uploads

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/keithlinneman/playdrop/internal/log"
)

// Rebuild reconciles the registry with the upload root after a restart. Every
// directory named by a valid upload id that still contains the entry
// document is registered as published, using the directory's modification
// time as its creation time. Anything else is left for the sweeper's orphan
// pass. Returns the number of uploads restored.
func Rebuild(ctx context.Context, logger log.Logger, reg *Registry, root, entryName string) (int, error) {
	if logger == nil {
		logger = log.Nop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read upload root: %w", err)
	}

	restored := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		if _, err := uuid.Parse(id); err != nil {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		dir := filepath.Join(root, id)
		rel, err := Locate(dir, entryName)
		if err != nil {
			logger.Debug(ctx, "rebuild: skipping upload without entry document", "upload_id", id)
			continue
		}

		if err := reg.Register(id, dir, info.ModTime()); err != nil {
			continue
		}
		if err := reg.SetEntryPath(id, rel); err != nil {
			continue
		}
		restored++
	}

	logger.Info(ctx, "upload registry rebuilt from disk", "restored", restored, "root", root)
	return restored, nil
}
