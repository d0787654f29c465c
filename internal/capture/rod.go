package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Chrome lifecycle events matching each wait condition. networkIdle fires
// after 500ms without connections, networkAlmostIdle after 500ms with at
// most two.
var rodLifecycleEvents = map[WaitUntil]proto.PageLifecycleEventName{
	WaitUntilLoad:             proto.PageLifecycleEventNameLoad,
	WaitUntilDOMContentLoaded: proto.PageLifecycleEventNameDOMContentLoaded,
	WaitUntilNetworkIdle0:     proto.PageLifecycleEventNameNetworkIdle,
	WaitUntilNetworkIdle2:     proto.PageLifecycleEventNameNetworkAlmostIdle,
}

var rodFormats = map[Format]proto.PageCaptureScreenshotFormat{
	FormatPNG:  proto.PageCaptureScreenshotFormatPng,
	FormatJPEG: proto.PageCaptureScreenshotFormatJpeg,
	FormatWebP: proto.PageCaptureScreenshotFormatWebp,
}

type rodDriver struct {
	logger logr.Logger
}

// NewRodDriver returns a Driver that controls Chromium over the DevTools
// protocol. Without an executable path the launcher downloads and uses its
// own Chromium build.
func NewRodDriver(logger logr.Logger) Driver {
	return &rodDriver{
		logger: logger,
	}
}

func (d *rodDriver) Launch(ctx context.Context, config LaunchConfig) (Browser, error) {
	l := launcher.New().Context(ctx).Headless(config.Headless)
	for _, arg := range config.Args {
		name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}
	if config.ExecutablePath != "" {
		l = l.Bin(config.ExecutablePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	d.logger.V(1).Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", controlURL, err)
	}

	return &rodBrowser{
		browser:  browser,
		launcher: l,
	}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	return &rodPage{page: page}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) SetViewport(width int, height int) error {
	return p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

func (p *rodPage) Goto(ctx context.Context, url string, options GotoOptions) error {
	event, ok := rodLifecycleEvents[options.WaitUntil]
	if !ok {
		return fmt.Errorf("unsupported wait condition: %s", options.WaitUntil)
	}

	ctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	page := p.page.Context(ctx)
	wait := page.WaitNavigation(event)

	if err := page.Navigate(url); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &timeoutError{err: fmt.Errorf("failed to navigate to %s: %w", url, err)}
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &timeoutError{err: fmt.Errorf("waiting for %s: %w", options.WaitUntil, err)}
		}
		return err
	}
	return nil
}

func (p *rodPage) Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error) {
	format, ok := rodFormats[options.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", options.Format)
	}

	request := &proto.PageCaptureScreenshot{
		Format:      format,
		FromSurface: true,
	}
	if options.Quality > 0 {
		request.Quality = gson.Int(options.Quality)
	}

	return p.page.Context(ctx).Screenshot(options.FullPage, request)
}
