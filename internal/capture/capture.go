package capture

import (
	"context"
	"fmt"
	"time"

	"webshot/internal/filename"
	"webshot/internal/storage"
	"webshot/internal/urlutil"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SandboxArgs disable Chromium's sandbox. This weakens process isolation and
// is only acceptable in trusted or containerized environments.
var SandboxArgs = []string{"--no-sandbox", "--disable-setuid-sandbox"}

type LaunchConfig struct {
	Headless       bool
	Args           []string
	ExecutablePath string
}

type GotoOptions struct {
	WaitUntil WaitUntil
	Timeout   time.Duration
}

type ScreenshotOptions struct {
	FullPage bool
	Format   Format
	// Quality is zero unless Format.HasQuality
	Quality int
}

// Driver starts browsers. It is the only part of a capture that talks to a
// real browser.
type Driver interface {
	Launch(ctx context.Context, config LaunchConfig) (Browser, error)
}

type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Close releases the browser process and everything it owns
	Close() error
}

type Page interface {
	SetViewport(width int, height int) error
	// Goto navigates and waits for the given condition. A timeout is
	// reported as an error whose Timeout method returns true.
	Goto(ctx context.Context, url string, options GotoOptions) error
	Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error)
}

// NewDriver returns the driver for engine.
func NewDriver(engine Engine, logger logr.Logger) (Driver, error) {
	switch engine {
	case EngineRod:
		return NewRodDriver(logger), nil
	case EnginePlaywright:
		return NewPlaywrightDriver(logger), nil
	case EngineChromedp:
		return NewChromedpDriver(logger), nil
	}
	return nil, fmt.Errorf("unknown engine: %s", engine)
}

type Capturer struct {
	Driver      Driver
	OpenStorage func(ctx context.Context, c storage.Config) (storage.Storage, error)
	Logger      logr.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
}

func NewCapturer(driver Driver, logger logr.Logger) *Capturer {
	return &Capturer{
		Driver:      driver,
		OpenStorage: storage.Open,
		Logger:      logger,
		Tracer:      otel.Tracer("webshot/internal/capture"),
		Now:         time.Now,
	}
}

// Capture takes a screenshot of rawURL and returns the location it was
// written to. Every failure is an *Error. The browser is closed before
// Capture returns, whatever the outcome.
func (c *Capturer) Capture(ctx context.Context, rawURL string, options Options) (string, error) {
	ctx, span := c.Tracer.Start(ctx, "Capture")
	defer span.End()

	location, err := c.capture(ctx, rawURL, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return location, nil
}

func (c *Capturer) capture(ctx context.Context, rawURL string, options Options) (string, error) {
	currentURL, err := c.normalize(ctx, rawURL)
	if err != nil {
		return "", &Error{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("url.full", currentURL))

	logger := c.Logger.WithValues("url", currentURL)
	logger.Info("taking screenshot",
		"format", string(options.Format),
		"viewport", fmt.Sprintf("%dx%d", options.Width, options.Height),
		"fullPage", options.FullPage,
	)
	if options.Delay > 0 {
		logger.Info("delaying capture", "delay", options.Delay.String())
	}

	s, err := c.openStorage(ctx, options)
	if err != nil {
		return "", &Error{Kind: KindFilesystem, URL: currentURL, Err: err}
	}

	name := filename.Generate(currentURL, options.Width, options.Height, string(options.Format), c.Now())

	return c.shoot(ctx, logger, currentURL, name, s, options)
}

func (c *Capturer) normalize(ctx context.Context, rawURL string) (string, error) {
	_, span := c.Tracer.Start(ctx, "Normalize")
	defer span.End()

	currentURL, err := urlutil.Normalize(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return currentURL, nil
}

func (c *Capturer) openStorage(ctx context.Context, options Options) (storage.Storage, error) {
	ctx, span := c.Tracer.Start(ctx, "OpenStorage")
	defer span.End()

	return c.OpenStorage(ctx, storage.Config{
		Location:   options.OutputDir,
		S3Endpoint: options.S3Endpoint,
	})
}

// shoot owns the browser for its whole lifetime; the deferred Close is the
// single release point for every path after a successful launch.
func (c *Capturer) shoot(ctx context.Context, logger logr.Logger, url string, name string, s storage.Storage, options Options) (string, error) {
	browser, err := c.launch(ctx, logger, options)
	if err != nil {
		return "", &Error{Kind: KindLaunch, URL: url, Err: err}
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Error(err, "failed to close browser")
		}
	}()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return "", &Error{Kind: KindLaunch, URL: url, Err: fmt.Errorf("failed to create new page: %w", err)}
	}

	if err := page.SetViewport(options.Width, options.Height); err != nil {
		return "", &Error{Kind: KindLaunch, URL: url, Err: fmt.Errorf("failed to set viewport size: %w", err)}
	}

	if err := c.navigate(ctx, logger, page, url, options); err != nil {
		if isTimeout(err) {
			return "", &Error{Kind: KindNavigationTimeout, URL: url, Timeout: options.Timeout, Err: err}
		}
		return "", &Error{Kind: KindNavigation, URL: url, Err: err}
	}

	if options.Delay > 0 {
		logger.V(1).Info("waiting before capture", "delay", options.Delay.String())
		select {
		case <-time.After(options.Delay):
		case <-ctx.Done():
			return "", &Error{Kind: KindRender, URL: url, Err: fmt.Errorf("waiting %s before capture: %w", options.Delay, ctx.Err())}
		}
	}

	location, err := c.render(ctx, logger, page, name, s, options)
	if err != nil {
		return "", &Error{Kind: KindRender, URL: url, Err: err}
	}

	logger.Info("screenshot saved", "location", location)
	return location, nil
}

func (c *Capturer) launch(ctx context.Context, logger logr.Logger, options Options) (Browser, error) {
	ctx, span := c.Tracer.Start(ctx, "Launch", trace.WithAttributes(attribute.String("engine", string(options.Engine))))
	defer span.End()

	if options.ExecutablePath != "" {
		logger.Info("using browser executable", "path", options.ExecutablePath)
	} else {
		logger.V(1).Info("using bundled browser")
	}

	return c.Driver.Launch(ctx, LaunchConfig{
		Headless:       true,
		Args:           SandboxArgs,
		ExecutablePath: options.ExecutablePath,
	})
}

func (c *Capturer) navigate(ctx context.Context, logger logr.Logger, page Page, url string, options Options) error {
	ctx, span := c.Tracer.Start(ctx, "Navigate", trace.WithAttributes(
		attribute.String("wait_until", string(options.WaitUntil)),
		attribute.Int64("timeout_ms", options.Timeout.Milliseconds()),
	))
	defer span.End()

	logger.Info("navigating", "waitUntil", string(options.WaitUntil), "timeout", options.Timeout.String())
	return page.Goto(ctx, url, GotoOptions{
		WaitUntil: options.WaitUntil,
		Timeout:   options.Timeout,
	})
}

func (c *Capturer) render(ctx context.Context, logger logr.Logger, page Page, name string, s storage.Storage, options Options) (string, error) {
	ctx, span := c.Tracer.Start(ctx, "Render", trace.WithAttributes(attribute.String("format", string(options.Format))))
	defer span.End()

	screenshotOptions := ScreenshotOptions{
		FullPage: options.FullPage,
		Format:   options.Format,
	}
	if options.Format.HasQuality() {
		screenshotOptions.Quality = options.Quality
		logger.Info("image quality", "quality", options.Quality)
	}

	data, err := page.Screenshot(ctx, screenshotOptions)
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}

	return s.Put(ctx, name, data)
}
