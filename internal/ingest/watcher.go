package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/resync-ops/resync/internal/chunk"
	"github.com/resync-ops/resync/internal/errors"
)

// DefaultDebounce coalesces editor save bursts into one re-ingest.
const DefaultDebounce = 500 * time.Millisecond

// watchedExtensions are the document types watch mode re-ingests.
var watchedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Watcher re-ingests documents under a directory as they change.
// Events for the same path inside the debounce window collapse into
// one reindex; removals drop the document from the store.
type Watcher struct {
	ingestor *Ingestor
	root     string
	debounce time.Duration
}

// NewWatcher creates a watcher over root. debounce <= 0 uses the
// default window.
func NewWatcher(ingestor *Ingestor, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{ingestor: ingestor, root: root, debounce: debounce}
}

// Run watches until the context is cancelled. The initial sweep
// ingests everything already present.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIntegrationError("fsnotify", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	if err := w.Sweep(ctx); err != nil {
		return err
	}

	// pending maps path to whether the last event was a removal.
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						slog.Warn("cannot watch new directory",
							slog.String("path", event.Name),
							slog.Any("error", err))
					}
					continue
				}
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			pending[event.Name] = event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename)
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.Any("error", err))

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]bool)
		}
	}
}

// Sweep ingests every watched document currently under the root.
func (w *Watcher) Sweep(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !watchedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		doc, err := LoadFile(w.root, path)
		if err != nil {
			slog.Warn("skipping unreadable document",
				slog.String("path", path),
				slog.Any("error", err))
			return nil
		}
		_, err = w.ingestor.Ingest(ctx, doc)
		return err
	})
}

func (w *Watcher) flush(ctx context.Context, pending map[string]bool) {
	for path, removed := range pending {
		if removed {
			docID := DocumentIDFor(w.root, path)
			if _, err := w.ingestor.Remove(ctx, docID); err != nil {
				slog.Warn("remove failed",
					slog.String("document", docID),
					slog.Any("error", err))
			}
			continue
		}

		doc, err := LoadFile(w.root, path)
		if err != nil {
			slog.Warn("skipping unreadable document",
				slog.String("path", path),
				slog.Any("error", err))
			continue
		}
		if _, err := w.ingestor.Reindex(ctx, doc); err != nil {
			slog.Warn("reindex failed",
				slog.String("document", doc.DocumentID),
				slog.Any("error", err))
		}
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// DocumentIDFor derives the document id from a file's path relative
// to the watch root.
func DocumentIDFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// LoadFile reads a document from disk. The title comes from the first
// level-one markdown header, falling back to the file name.
func LoadFile(root, path string) (*chunk.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewDataParsingError("read document", err)
	}

	content := string(data)
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, line := range strings.Split(content, "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok {
			title = strings.TrimSpace(t)
			break
		}
	}

	return &chunk.Document{
		DocumentID: DocumentIDFor(root, path),
		Title:      title,
		Content:    content,
	}, nil
}
