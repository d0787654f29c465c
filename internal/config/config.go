package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"webshot/internal/capture"

	"golang.org/x/exp/constraints"
	"golang.org/x/xerrors"
)

var (
	// ErrHelp is returned by Parse when usage was requested.
	ErrHelp = errors.New("help requested")
	// ErrVersion is returned by Parse when the version was requested.
	ErrVersion = errors.New("version requested")
)

// UsageError reports malformed, missing or unrecognized command-line input.
type UsageError struct {
	Message string
	Err     error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// Invocation is everything one run of the command needs.
type Invocation struct {
	URL          string
	Options      capture.Options
	Verbose      bool
	JSON         bool
	OTLPEndpoint string
}

type option struct {
	names []string
	// placeholder is shown in the usage text; empty for switches
	placeholder string
	usage       string
	apply       func(invocation *Invocation, value string) error
	// action ends parsing with its error when set
	action error
}

func (o option) takesValue() bool {
	return o.placeholder != ""
}

var options = []option{
	{
		names:       []string{"--output", "-o"},
		placeholder: "dir|s3://bucket/prefix",
		usage:       "Output location (default: current directory)",
		apply: func(invocation *Invocation, value string) error {
			invocation.Options.OutputDir = value
			return nil
		},
	},
	{
		names:       []string{"--format", "-f"},
		placeholder: "format",
		usage:       "Image format: png, jpeg, webp (default: png)",
		apply: func(invocation *Invocation, value string) error {
			format := capture.Format(strings.ToLower(value))
			if !slices.Contains(capture.Formats, format) {
				return usageErrorf("unsupported image format %q, valid formats: %s", value, join(capture.Formats))
			}
			invocation.Options.Format = format
			return nil
		},
	},
	{
		names:       []string{"--delay", "-d"},
		placeholder: "ms",
		usage:       "Delay in milliseconds before the capture (default: 0)",
		apply: func(invocation *Invocation, value string) error {
			delay, err := milliseconds("delay", value, 0)
			if err != nil {
				return err
			}
			invocation.Options.Delay = delay
			return nil
		},
	},
	{
		names:       []string{"--quality", "-q"},
		placeholder: "1-100",
		usage:       "Quality for jpeg and webp (default: 85)",
		apply: func(invocation *Invocation, value string) error {
			quality, err := parseInteger[int]("quality", value)
			if err != nil {
				return err
			}
			if err := between("quality", quality, 1, 100); err != nil {
				return err
			}
			invocation.Options.Quality = quality
			return nil
		},
	},
	{
		names:       []string{"--width", "-w"},
		placeholder: "pixels",
		usage:       "Viewport width in pixels (default: 1920)",
		apply: func(invocation *Invocation, value string) error {
			width, err := parseInteger[int]("width", value)
			if err != nil {
				return err
			}
			if err := atLeast("width", width, 1); err != nil {
				return err
			}
			invocation.Options.Width = width
			return nil
		},
	},
	{
		names:       []string{"--height", "-h"},
		placeholder: "pixels",
		usage:       "Viewport height in pixels (default: 1080)",
		apply: func(invocation *Invocation, value string) error {
			height, err := parseInteger[int]("height", value)
			if err != nil {
				return err
			}
			if err := atLeast("height", height, 1); err != nil {
				return err
			}
			invocation.Options.Height = height
			return nil
		},
	},
	{
		names:       []string{"--full-page", "-fp"},
		placeholder: "true|false",
		usage:       "Capture the whole scrollable page (default: true)",
		apply: func(invocation *Invocation, value string) error {
			switch strings.ToLower(value) {
			case "true", "1":
				invocation.Options.FullPage = true
			case "false", "0":
				invocation.Options.FullPage = false
			default:
				return usageErrorf("invalid value for --full-page, expected true, false, 1 or 0, got %q", value)
			}
			return nil
		},
	},
	{
		names:       []string{"--executable-path", "-ep"},
		placeholder: "path",
		usage:       "Browser executable (default: bundled Chromium)",
		apply: func(invocation *Invocation, value string) error {
			if err := validatePath("--executable-path", value); err != nil {
				return err
			}
			invocation.Options.ExecutablePath = value
			return nil
		},
	},
	{
		names:       []string{"--timeout", "-t"},
		placeholder: "ms",
		usage:       "Navigation timeout in milliseconds (default: 30000)",
		apply: func(invocation *Invocation, value string) error {
			timeout, err := milliseconds("timeout", value, 1)
			if err != nil {
				return err
			}
			invocation.Options.Timeout = timeout
			return nil
		},
	},
	{
		names:       []string{"--wait-until", "-wu"},
		placeholder: "event",
		usage:       "When navigation is done: load, domcontentloaded, networkidle0, networkidle2 (default: networkidle2)",
		apply: func(invocation *Invocation, value string) error {
			waitUntil := capture.WaitUntil(value)
			if !slices.Contains(capture.WaitUntils, waitUntil) {
				return usageErrorf("invalid wait-until %q, valid options: %s", value, join(capture.WaitUntils))
			}
			invocation.Options.WaitUntil = waitUntil
			return nil
		},
	},
	{
		names:       []string{"--engine", "-e"},
		placeholder: "engine",
		usage:       "Browser automation engine: rod, playwright, chromedp (default: rod)",
		apply: func(invocation *Invocation, value string) error {
			engine := capture.Engine(strings.ToLower(value))
			if !slices.Contains(capture.Engines, engine) {
				return usageErrorf("unknown engine %q, valid engines: %s", value, join(capture.Engines))
			}
			invocation.Options.Engine = engine
			return nil
		},
	},
	{
		names:       []string{"--s3-endpoint"},
		placeholder: "url",
		usage:       "Custom S3 endpoint for s3:// output",
		apply: func(invocation *Invocation, value string) error {
			if err := validatePath("--s3-endpoint", value); err != nil {
				return err
			}
			invocation.Options.S3Endpoint = value
			return nil
		},
	},
	{
		names:       []string{"--otlp-endpoint"},
		placeholder: "host:port",
		usage:       "Export traces to this OTLP gRPC endpoint",
		apply: func(invocation *Invocation, value string) error {
			if err := validatePath("--otlp-endpoint", value); err != nil {
				return err
			}
			invocation.OTLPEndpoint = value
			return nil
		},
	},
	{
		names: []string{"--verbose", "-v"},
		usage: "Print debug logs",
		apply: func(invocation *Invocation, _ string) error {
			invocation.Verbose = true
			return nil
		},
	},
	{
		names: []string{"--json"},
		usage: "Print the result as JSON",
		apply: func(invocation *Invocation, _ string) error {
			invocation.JSON = true
			return nil
		},
	},
	{
		names:  []string{"--help"},
		usage:  "Show this help",
		action: ErrHelp,
	},
	{
		names:  []string{"--version"},
		usage:  "Show the version",
		action: ErrVersion,
	},
}

// Examples are argument lists shown after the options in Usage.
var Examples = [][]string{
	{"https://example.com"},
	{"https://example.com", "-o", "./captures"},
	{"https://example.com", "-fp", "false", "-f", "jpeg", "-q", "90"},
	{"https://example.com", "-d", "2000", "-w", "375", "-h", "667", "-f", "webp"},
	{"https://example.com", "-ep", "/opt/mybrowser/chrome"},
	{"https://example.com", "-t", "60000", "-wu", "load"},
}

const maxMilliseconds = math.MaxInt64 / int64(time.Millisecond)

func lookup(name string) (option, bool) {
	for _, o := range options {
		if slices.Contains(o.names, name) {
			return o, true
		}
	}
	return option{}, false
}

func isFlag(token string) bool {
	return strings.HasPrefix(token, "-")
}

// Parse resolves command-line tokens, without the program name, against
// capture.DefaultOptions. Every failure is a *UsageError, except ErrHelp and
// ErrVersion which are returned as soon as their flag is reached.
func Parse(tokens []string) (*Invocation, error) {
	invocation := &Invocation{
		Options: capture.DefaultOptions(),
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		o, ok := lookup(token)
		switch {
		case ok && o.action != nil:
			return nil, o.action
		case ok && o.takesValue():
			if i+1 >= len(tokens) || isFlag(tokens[i+1]) {
				return nil, usageErrorf("missing value for option %s", token)
			}
			i++
			if err := o.apply(invocation, tokens[i]); err != nil {
				return nil, asUsageError(err)
			}
		case ok:
			if err := o.apply(invocation, ""); err != nil {
				return nil, asUsageError(err)
			}
		case isFlag(token):
			return nil, usageErrorf("unrecognized option: %s", token)
		case invocation.URL == "":
			invocation.URL = token
		default:
			return nil, usageErrorf("unrecognized argument or url already specified: %s", token)
		}
	}

	if invocation.URL == "" {
		return nil, usageErrorf("url not specified")
	}

	if invocation.Options.Engine == capture.EnginePlaywright && invocation.Options.Format == capture.FormatWebP {
		return nil, usageErrorf("format %s is not supported by engine %s", capture.FormatWebP, capture.EnginePlaywright)
	}

	return invocation, nil
}

func asUsageError(err error) error {
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return usageErr
	}
	return &UsageError{Message: "invalid option", Err: err}
}

func parseInteger[T constraints.Signed](name string, value string) (T, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err == nil && int64(T(n)) != n {
		err = strconv.ErrRange
	}
	if err != nil {
		return 0, &UsageError{
			Message: fmt.Sprintf("%s must be an integer", name),
			Err:     xerrors.Errorf("failed to parse %q: %w", value, err),
		}
	}
	return T(n), nil
}

func atLeast[T constraints.Integer](name string, n T, min T) error {
	if n < min {
		return usageErrorf("%s must be at least %d, got %d", name, min, n)
	}
	return nil
}

func between[T constraints.Integer](name string, n T, min T, max T) error {
	if n < min || n > max {
		return usageErrorf("%s must be between %d and %d, got %d", name, min, max, n)
	}
	return nil
}

// milliseconds converts a flag value in milliseconds, rejecting values a
// time.Duration cannot hold.
func milliseconds(name string, value string, min int64) (time.Duration, error) {
	ms, err := parseInteger[int64](name, value)
	if err != nil {
		return 0, err
	}
	if err := atLeast(name, ms, min); err != nil {
		return 0, err
	}
	if ms > maxMilliseconds {
		return 0, usageErrorf("%s must be at most %d, got %d", name, maxMilliseconds, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func validatePath(name string, value string) error {
	if value == "" || isFlag(value) {
		return usageErrorf("value for %s is missing or invalid", name)
	}
	return nil
}

func join[T ~string](values []T) string {
	s := make([]string, 0, len(values))
	for _, v := range values {
		s = append(s, string(v))
	}
	return strings.Join(s, ", ")
}

// Usage returns the help text for program.
func Usage(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage: %s <url> [options]\n\nOptions:\n", program)
	for _, o := range options {
		left := strings.Join(o.names, ", ")
		if o.takesValue() {
			left += " <" + o.placeholder + ">"
		}
		fmt.Fprintf(&b, "  %-40s %s\n", left, o.usage)
	}
	b.WriteString("\nExamples:\n")
	for _, example := range Examples {
		fmt.Fprintf(&b, "  %s %s\n", program, strings.Join(example, " "))
	}
	return b.String()
}
