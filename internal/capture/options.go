package capture

import (
	"time"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Formats lists the accepted image formats in display order.
var Formats = []Format{FormatPNG, FormatJPEG, FormatWebP}

// HasQuality reports whether the encoder for f takes a quality setting.
func (f Format) HasQuality() bool {
	return f == FormatJPEG || f == FormatWebP
}

// WaitUntil is the condition after which navigation counts as finished.
type WaitUntil string

const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	// WaitUntilNetworkIdle0 waits until there are no network connections for 500ms.
	WaitUntilNetworkIdle0 WaitUntil = "networkidle0"
	// WaitUntilNetworkIdle2 waits until there are at most two network connections for 500ms.
	WaitUntilNetworkIdle2 WaitUntil = "networkidle2"
)

var WaitUntils = []WaitUntil{WaitUntilLoad, WaitUntilDOMContentLoaded, WaitUntilNetworkIdle0, WaitUntilNetworkIdle2}

// Engine selects the browser automation library.
type Engine string

const (
	EngineRod        Engine = "rod"
	EnginePlaywright Engine = "playwright"
	EngineChromedp   Engine = "chromedp"
)

var Engines = []Engine{EngineRod, EnginePlaywright, EngineChromedp}

// Options is the resolved configuration of a single capture.
type Options struct {
	OutputDir      string
	Width          int
	Height         int
	Format         Format
	Quality        int
	Delay          time.Duration
	FullPage       bool
	ExecutablePath string
	Timeout        time.Duration
	WaitUntil      WaitUntil
	Engine         Engine
	S3Endpoint     string
}

func DefaultOptions() Options {
	return Options{
		OutputDir: ".",
		Width:     1920,
		Height:    1080,
		Format:    FormatPNG,
		Quality:   85,
		Delay:     0,
		FullPage:  true,
		Timeout:   30 * time.Second,
		WaitUntil: WaitUntilNetworkIdle2,
		Engine:    EngineRod,
	}
}
