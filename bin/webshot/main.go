package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webshot/internal/capture"
	"webshot/internal/config"
	"webshot/internal/tracing"
	"webshot/internal/urlutil"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/xerrors"
)

const program = "webshot"

var version = "dev"

var newDriver = capture.NewDriver

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code.
func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	cmd := &cobra.Command{
		Use:     program + " <url> [options]",
		Short:   "Take a screenshot of a web page with a headless browser",
		Version: version,
		// the option table owns every token, including -h which is height
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			invocation, err := config.Parse(args)
			if err != nil {
				return err
			}

			location, err := execute(cmd.Context(), invocation, stderr)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), invocation, location)
		},
	}
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		fmt.Fprint(c.OutOrStdout(), config.Usage(c.Name()))
	})
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		_, err := fmt.Fprint(c.ErrOrStderr(), config.Usage(c.Name()))
		return err
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)

	var usageErr *config.UsageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrHelp):
		if err := cmd.Help(); err != nil {
			return 1
		}
		return 0
	case errors.Is(err, config.ErrVersion):
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cmd.Name(), cmd.Version)
		return 0
	case errors.As(err, &usageErr):
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n\n", err)
		_ = cmd.Usage()
		return 1
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return 1
}

func execute(ctx context.Context, invocation *config.Invocation, stderr io.Writer) (string, error) {
	logger := newLogger(stderr, invocation.Verbose)

	shutdown, err := tracing.Setup(ctx, invocation.OTLPEndpoint, version)
	if err != nil {
		return "", xerrors.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Error(err, "failed to flush traces")
		}
	}()

	driver, err := newDriver(invocation.Options.Engine, logger.WithName(string(invocation.Options.Engine)))
	if err != nil {
		return "", err
	}

	return capture.NewCapturer(driver, logger.WithName("capture")).Capture(ctx, invocation.URL, invocation.Options)
}

// Result is the --json output. URL is the normalized address that was loaded.
type Result struct {
	URL      string `json:"url"`
	Location string `json:"location"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func printResult(w io.Writer, invocation *config.Invocation, location string) error {
	if !invocation.JSON {
		_, err := fmt.Fprintln(w, location)
		return err
	}

	url, err := urlutil.Normalize(invocation.URL)
	if err != nil {
		url = invocation.URL
	}

	if err := json.NewEncoder(w).Encode(Result{
		URL:      url,
		Location: location,
		Format:   string(invocation.Options.Format),
		Width:    invocation.Options.Width,
		Height:   invocation.Options.Height,
	}); err != nil {
		return xerrors.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) logr.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zapr.NewLogger(zap.New(core))
}
