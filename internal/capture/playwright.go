package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/playwright-community/playwright-go"
)

// Playwright only knows a single network idle state, so both idle
// conditions wait for it.
var playwrightWaitUntil = map[WaitUntil]*playwright.WaitUntilState{
	WaitUntilLoad:             playwright.WaitUntilStateLoad,
	WaitUntilDOMContentLoaded: playwright.WaitUntilStateDomcontentloaded,
	WaitUntilNetworkIdle0:     playwright.WaitUntilStateNetworkidle,
	WaitUntilNetworkIdle2:     playwright.WaitUntilStateNetworkidle,
}

type playwrightDriver struct {
	logger logr.Logger
}

// NewPlaywrightDriver returns a Driver backed by Playwright's Chromium.
// Playwright cannot encode WebP.
func NewPlaywrightDriver(logger logr.Logger) Driver {
	return &playwrightDriver{
		logger: logger,
	}
}

func (d *playwrightDriver) Launch(ctx context.Context, config LaunchConfig) (Browser, error) {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: config.ExecutablePath != "",
		Verbose:             d.logger.V(1).Enabled(),
	}); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	p, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	options := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
		Args:     config.Args,
	}
	if config.ExecutablePath != "" {
		options.ExecutablePath = playwright.String(config.ExecutablePath)
	}

	browser, err := p.Chromium.Launch(options)
	if err != nil {
		if stopErr := p.Stop(); stopErr != nil {
			d.logger.Error(stopErr, "failed to stop playwright")
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightBrowser{
		playwright: p,
		browser:    browser,
	}, nil
}

type playwrightBrowser struct {
	playwright *playwright.Playwright
	browser    playwright.Browser
}

func (b *playwrightBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (b *playwrightBrowser) Close() error {
	return errors.Join(b.browser.Close(), b.playwright.Stop())
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) SetViewport(width int, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *playwrightPage) Goto(ctx context.Context, url string, options GotoOptions) error {
	waitUntil, ok := playwrightWaitUntil[options.WaitUntil]
	if !ok {
		return fmt.Errorf("unsupported wait condition: %s", options.WaitUntil)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.page.Close()
		case <-done:
		}
	}()
	defer close(done)

	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   playwright.Float(float64(options.Timeout.Milliseconds())),
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return &timeoutError{err: fmt.Errorf("failed to navigate to %s: %w", url, err)}
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error) {
	screenshotOptions := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(options.FullPage),
	}

	switch options.Format {
	case FormatPNG:
		screenshotOptions.Type = playwright.ScreenshotTypePng
	case FormatJPEG:
		screenshotOptions.Type = playwright.ScreenshotTypeJpeg
		if options.Quality > 0 {
			screenshotOptions.Quality = playwright.Int(options.Quality)
		}
	default:
		return nil, fmt.Errorf("unsupported format for playwright: %s", options.Format)
	}

	return p.page.Screenshot(screenshotOptions)
}
