// Package browser drives a headless Chrome inside a sandboxed chromedriver
// container. Interactive elements are tagged with data-sfai attributes so
// the agent can reference them by short numeric ids.
package browser

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/starfleetai/bridge/pkg/sandbox"
)

//go:embed scripts/list_viewport_elements.js
var listViewportElementsScript string

// ElementType classifies a viewport element.
type ElementType string

// Element types.
const (
	ElementText   ElementType = "text"
	ElementLink   ElementType = "link"
	ElementButton ElementType = "button"
	ElementInput  ElementType = "input"
)

// Element is one interactive or readable element in the viewport.
type Element struct {
	ID      int64       `json:"id"`
	Type    ElementType `json:"type"`
	Content *string     `json:"content"`
}

// Browser is a live WebDriver session with its backing container.
type Browser struct {
	// Workdir is where screenshots and downloads are stored.
	Workdir string

	wd          *webdriverClient
	manager     *sandbox.Manager
	containerID string
}

// Connect launches a chromedriver container and opens a session against it.
func Connect(ctx context.Context, manager *sandbox.Manager, workdir string) (*Browser, error) {
	containerID, err := manager.LaunchChromedriver(ctx)
	if err != nil {
		return nil, err
	}

	hostPort, err := manager.WaitForHostPort(ctx, containerID, sandbox.ChromedriverPort)
	if err != nil {
		killErr := manager.Kill(context.WithoutCancel(ctx), containerID)
		if killErr != nil {
			slog.Error("Failed to kill chromedriver container", "container_id", containerID, "error", killErr)
		}
		return nil, err
	}

	wd, err := newSession(ctx, "http://localhost:"+hostPort, map[string]any{
		"goog:chromeOptions": map[string]any{
			"args": []string{"--headless", "--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"},
		},
	})
	if err != nil {
		killErr := manager.Kill(context.WithoutCancel(ctx), containerID)
		if killErr != nil {
			slog.Error("Failed to kill chromedriver container", "container_id", containerID, "error", killErr)
		}
		return nil, err
	}

	if err := wd.setWindowRect(ctx, 1920, 1080); err != nil {
		return nil, err
	}

	return &Browser{
		Workdir:     workdir,
		wd:          wd,
		manager:     manager,
		containerID: containerID,
	}, nil
}

// Close tears down the session and its container.
func (b *Browser) Close(ctx context.Context) {
	if err := b.wd.deleteSession(ctx); err != nil {
		slog.Warn("Failed to delete webdriver session", "error", err)
	}
	if err := b.manager.Kill(ctx, b.containerID); err != nil {
		slog.Error("Failed to kill chromedriver container", "container_id", b.containerID, "error", err)
	}
}

// Goto navigates to the given URL.
func (b *Browser) Goto(ctx context.Context, url string) error {
	return b.wd.navigate(ctx, url)
}

// CurrentURL returns the page's URL.
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	return b.wd.currentURL(ctx)
}

// HTML returns the current page's markup.
func (b *Browser) HTML(ctx context.Context) (string, error) {
	var html string
	err := b.wd.execute(ctx, "return document.documentElement.outerHTML", nil, &html)
	if err != nil {
		return "", err
	}
	return html, nil
}

// SaveScreenshot captures the page into the workdir and returns the file
// path.
func (b *Browser) SaveScreenshot(ctx context.Context) (string, error) {
	base64Data, err := b.wd.screenshot(ctx)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", fmt.Errorf("decoding screenshot: %w", err)
	}

	filePath := filepath.Join(b.Workdir, "screenshot.png")
	if err := os.WriteFile(filePath, raw, 0o644); err != nil {
		return "", fmt.Errorf("saving screenshot: %w", err)
	}
	return filePath, nil
}

// ListViewportElements tags the meaningful elements currently in view and
// returns them.
func (b *Browser) ListViewportElements(ctx context.Context) ([]Element, error) {
	var elements []Element
	if err := b.wd.execute(ctx, listViewportElementsScript, nil, &elements); err != nil {
		return nil, err
	}
	slog.Debug("Elements from viewport", "count", len(elements))
	return elements, nil
}

// ScrollDown scrolls one screen down.
func (b *Browser) ScrollDown(ctx context.Context) error {
	return b.wd.execute(ctx, "window.scrollBy(0, window.innerHeight)", nil, nil)
}

// ScrollUp scrolls one screen up.
func (b *Browser) ScrollUp(ctx context.Context) error {
	return b.wd.execute(ctx, "window.scrollBy(0, -window.innerHeight)", nil, nil)
}

// ScrollPosition returns how far down the page the viewport is, in percent.
func (b *Browser) ScrollPosition(ctx context.Context) (int64, error) {
	var scrollTop, scrollHeight, clientHeight float64
	if err := b.wd.execute(ctx, "return window.scrollY", nil, &scrollTop); err != nil {
		return 0, err
	}
	if err := b.wd.execute(ctx, "return document.body.scrollHeight", nil, &scrollHeight); err != nil {
		return 0, err
	}
	if err := b.wd.execute(ctx, "return window.innerHeight", nil, &clientHeight); err != nil {
		return 0, err
	}

	denominator := scrollHeight - clientHeight
	if denominator <= 0 {
		return 100, nil
	}
	return int64(math.Ceil(scrollTop / denominator * 100)), nil
}

// Click clicks the element with the given data-sfai id.
func (b *Browser) Click(ctx context.Context, id int64) error {
	script := fmt.Sprintf("document.querySelector('[data-sfai=\"%d\"]').click()", id)
	return b.wd.execute(ctx, script, nil, nil)
}

// SendKeys types text into the element with the given data-sfai id.
func (b *Browser) SendKeys(ctx context.Context, id int64, text string) error {
	elementID, err := b.wd.findElement(ctx, fmt.Sprintf("[data-sfai=\"%d\"]", id))
	if err != nil {
		return err
	}
	return b.wd.sendKeys(ctx, elementID, text)
}
