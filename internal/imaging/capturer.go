// Package imaging captures rendered HTML pages as high-resolution PNG
// screenshots through a headless browser.
package imaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"

	"redcube/internal/config"
	"redcube/internal/logging"
)

// Capturer drives one browser instance and screenshots pages from local
// HTML files. Safe for a single Capture call at a time.
type Capturer struct {
	cfg config.ImagingConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// CaptureResult reports one page's outcome.
type CaptureResult struct {
	SourcePath string
	OutputPath string
	Err        error
}

// NewCapturer builds a capturer from imaging configuration. The browser is
// launched lazily on first capture.
func NewCapturer(cfg config.ImagingConfig) *Capturer {
	return &Capturer{cfg: cfg}
}

func (c *Capturer) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}

	url, err := launcher.New().Headless(c.cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(url).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	c.browser = browser
	logging.Imaging("browser connected (headless=%v)", c.cfg.Headless)
	return browser, nil
}

// Capture screenshots each HTML file into outputDir as page_NN.png. Pages
// are captured concurrently up to the configured limit. A failed page does
// not abort the batch; its error is recorded in the returned results.
// Capture itself only fails when the browser cannot start or the output
// directory cannot be created.
func (c *Capturer) Capture(ctx context.Context, htmlPaths []string, outputDir string) ([]CaptureResult, error) {
	if len(htmlPaths) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	browser, err := c.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]CaptureResult, len(htmlPaths))
	g, gctx := errgroup.WithContext(ctx)
	limit := c.cfg.Concurrency
	if limit <= 0 {
		limit = 2
	}
	g.SetLimit(limit)

	for i, src := range htmlPaths {
		g.Go(func() error {
			out := filepath.Join(outputDir, pngName(src, i))
			err := c.capturePage(gctx, browser, src, out)
			results[i] = CaptureResult{SourcePath: src, OutputPath: out, Err: err}
			if err != nil {
				logging.ImagingWarn("capture failed for %s: %v", src, err)
				results[i].OutputPath = ""
			}
			return nil
		})
	}
	_ = g.Wait()

	captured := 0
	for _, r := range results {
		if r.Err == nil {
			captured++
		}
	}
	logging.Imaging("captured %d/%d pages to %s", captured, len(htmlPaths), outputDir)
	return results, nil
}

func (c *Capturer) capturePage(ctx context.Context, browser *rod.Browser, src, dst string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "file://" + abs})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.ViewportWidth,
		Height:            c.cfg.ViewportHeight,
		DeviceScaleFactor: c.cfg.DeviceScale,
		Mobile:            false,
	}).Call(page); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	el, err := page.Timeout(c.cfg.GetTimeout()).Element(c.cfg.PageSelector)
	if err != nil {
		return fmt.Errorf("find %q: %w", c.cfg.PageSelector, err)
	}

	shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.WriteFile(dst, shot, 0o644); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}

func pngName(src string, index int) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if base == "" {
		return fmt.Sprintf("page_%02d.png", index+1)
	}
	return base + ".png"
}
