package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	viewportWidth  = 1280
	viewportHeight = 800
	settleDelay    = 500 * time.Millisecond
)

var ErrDisabled = errors.New("headless rendering disabled")

// Renderer loads a page in a browser and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// Disabled is used when the rendering flag is off.
type Disabled struct{}

func (Disabled) Render(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}

// Chrome renders through a fresh headless Chrome per call with a fixed user
// agent and viewport.
type Chrome struct {
	UserAgent string
}

func NewChrome(userAgent string) *Chrome {
	return &Chrome{UserAgent: userAgent}
}

func (c *Chrome) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(c.UserAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// The first Run binds the browser's lifetime to its context.
	if err := chromedp.Run(browserCtx); err != nil {
		return "", fmt.Errorf("chromedp start failed: %w", err)
	}

	renderCtx, cancelRender := context.WithTimeout(browserCtx, timeout)
	defer cancelRender()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(renderCtx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	log.Printf("[HEADLESS] Navigating to %s", url)

	var html string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Markup rendered so far is still useful if the network never settles.
			select {
			case <-idle:
			case <-ctx.Done():
			}
			return nil
		}),
	)
	if err != nil && !errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("chromedp navigate failed: %w", err)
	}

	// The idle wait may have consumed the render budget; read the DOM on a
	// short fresh deadline so partial markup is still returned.
	readCtx, cancelRead := context.WithTimeout(browserCtx, 2*time.Second)
	defer cancelRead()

	if err := chromedp.Run(readCtx,
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("chromedp read failed: %w", err)
	}
	return html, nil
}
