package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch emits paths of audio files dropped into root. Create and rename
// bursts are debounced so a file being written in several chunks is emitted
// once, after it has gone quiet. The returned channel closes when ctx ends.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger) (<-chan string, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, err
	}

	out := make(chan string, 64)

	go func() {
		defer close(out)
		defer w.Close()

		pending := make(map[string]struct{})
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}

		flush := func() {
			for p := range pending {
				select {
				case out <- p:
				default:
					logger.Warn("watcher: drop-folder backlog full, skipping", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if _, ok := TypeForPath(ev.Name); !ok {
					continue
				}
				pending[ev.Name] = struct{}{}
				timer.Reset(debounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher: fsnotify error", "error", err)
			case <-timer.C:
				flush()
			}
		}
	}()

	return out, nil
}
