package render

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"redcube/internal/logging"
)

// TemplateWatcher reloads the renderer when files in its override directory
// change. Rapid saves are debounced so an editor writing temp files does not
// trigger a reload storm.
type TemplateWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	renderer    *Renderer
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewTemplateWatcher creates a watcher for the renderer's template
// directory. The renderer must have been built with a non-empty dir.
func NewTemplateWatcher(r *Renderer) (*TemplateWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TemplateWatcher{
		watcher:     w,
		renderer:    r,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (tw *TemplateWatcher) Start(ctx context.Context) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	if err := tw.watcher.Add(tw.renderer.templateDir); err != nil {
		logging.Get(logging.CategoryRender).Warn("template watch failed (dir may not exist): %v", err)
	} else {
		logging.Render("watching template dir: %s", tw.renderer.templateDir)
	}

	go tw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its loop to exit.
func (tw *TemplateWatcher) Stop() {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.stopCh)
	<-tw.doneCh
	tw.watcher.Close()
}

func (tw *TemplateWatcher) run(ctx context.Context) {
	defer close(tw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopCh:
			return
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".tmpl") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			tw.mu.Lock()
			tw.debounceMap[event.Name] = time.Now()
			tw.mu.Unlock()
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryRender).Error("template watcher: %v", err)
		case <-ticker.C:
			tw.flushSettled()
		}
	}
}

func (tw *TemplateWatcher) flushSettled() {
	tw.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range tw.debounceMap {
		if now.Sub(at) >= tw.debounceDur {
			delete(tw.debounceMap, path)
			settled++
		}
	}
	tw.mu.Unlock()

	if settled == 0 {
		return
	}
	if err := tw.renderer.Reload(); err != nil {
		logging.Get(logging.CategoryRender).Error("template reload failed, keeping previous set: %v", err)
		return
	}
	logging.Render("templates reloaded (%d changed)", settled)
}
