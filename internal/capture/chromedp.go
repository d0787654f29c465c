package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-logr/logr"
)

// Lifecycle event names as reported by Page.lifecycleEvent.
var chromedpLifecycleEvents = map[WaitUntil]string{
	WaitUntilLoad:             "load",
	WaitUntilDOMContentLoaded: "DOMContentLoaded",
	WaitUntilNetworkIdle0:     "networkIdle",
	WaitUntilNetworkIdle2:     "networkAlmostIdle",
}

var chromedpFormats = map[Format]page.CaptureScreenshotFormat{
	FormatPNG:  page.CaptureScreenshotFormatPng,
	FormatJPEG: page.CaptureScreenshotFormatJpeg,
	FormatWebP: page.CaptureScreenshotFormatWebp,
}

type chromedpDriver struct {
	logger logr.Logger
}

// NewChromedpDriver returns a Driver that starts a local Chrome through
// chromedp's exec allocator. Without an executable path chromedp looks for an
// installed Chrome or Chromium.
func NewChromedpDriver(logger logr.Logger) Driver {
	return &chromedpDriver{
		logger: logger,
	}
}

func (d *chromedpDriver) Launch(ctx context.Context, config LaunchConfig) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", config.Headless))
	for _, arg := range config.Args {
		name, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if config.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecutablePath))
	}

	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			d.logger.V(1).Info(fmt.Sprintf(format, args...))
		}),
	)

	// the first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAllocator()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromedpBrowser{
		ctx:             browserCtx,
		cancelBrowser:   cancelBrowser,
		cancelAllocator: cancelAllocator,
	}, nil
}

type chromedpBrowser struct {
	ctx             context.Context
	cancelBrowser   context.CancelFunc
	cancelAllocator context.CancelFunc
}

func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, _ := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, err
	}
	return &chromedpPage{ctx: tabCtx}, nil
}

func (b *chromedpBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAllocator()
	return err
}

type chromedpPage struct {
	// ctx carries the tab; every action on the page runs in a context derived from it
	ctx context.Context
}

// tabContext derives a context from the tab that is also done when ctx is.
func (p *chromedpPage) tabContext(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return tabCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromedpPage) SetViewport(width int, height int) error {
	return chromedp.Run(p.ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromedpPage) Goto(ctx context.Context, url string, options GotoOptions) error {
	name, ok := chromedpLifecycleEvents[options.WaitUntil]
	if !ok {
		return fmt.Errorf("unsupported wait condition: %s", options.WaitUntil)
	}

	tabCtx, cancel := p.tabContext(ctx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, options.Timeout)
	defer cancelTimeout()

	var mu sync.Mutex
	fired := make(map[cdp.LoaderID]bool)
	notify := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != name {
			return
		}
		mu.Lock()
		fired[e.LoaderID] = true
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	var loaderID cdp.LoaderID
	err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, id, errorText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return errors.New(errorText)
			}
			loaderID = id
			return nil
		}),
	)
	if err != nil {
		return chromedpNavigationError(tabCtx, url, err)
	}

	// same-document navigations have no loader
	if loaderID == "" {
		return nil
	}

	for {
		mu.Lock()
		done := fired[loaderID]
		mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-notify:
		case <-tabCtx.Done():
			return chromedpNavigationError(tabCtx, url, fmt.Errorf("waiting for %s: %w", options.WaitUntil, tabCtx.Err()))
		}
	}
}

func chromedpNavigationError(ctx context.Context, url string, err error) error {
	err = fmt.Errorf("failed to navigate to %s: %w", url, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &timeoutError{err: err}
	}
	return err
}

func (p *chromedpPage) Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error) {
	format, ok := chromedpFormats[options.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", options.Format)
	}

	tabCtx, cancel := p.tabContext(ctx)
	defer cancel()

	var image []byte
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		capture := page.CaptureScreenshot().
			WithFormat(format).
			WithFromSurface(true)
		if options.Quality > 0 {
			capture = capture.WithQuality(int64(options.Quality))
		}

		if options.FullPage {
			var size []float64
			if err := chromedp.Evaluate(`[document.documentElement.scrollWidth, document.documentElement.scrollHeight]`, &size).Do(ctx); err != nil {
				return fmt.Errorf("failed to measure page: %w", err)
			}
			if len(size) == 2 {
				capture = capture.
					WithCaptureBeyondViewport(true).
					WithClip(&page.Viewport{Width: size[0], Height: size[1], Scale: 1})
			}
		}

		var err error
		image, err = capture.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return image, nil
}
