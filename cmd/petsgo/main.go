// Command petsgo calls the PetsGo API from the command line using the
// persisted session.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/config"
	"github.com/eshaffer321/petsgo-go/internal/logging"
	"github.com/eshaffer321/petsgo-go/internal/metrics"
	"github.com/eshaffer321/petsgo-go/pkg/petsgo"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const (
	flagEnvFile     = "env-file"
	flagBaseURL     = "base-url"
	flagTimeout     = "timeout"
	flagStore       = "store"
	flagStoreDSN    = "store-dsn"
	flagEnvelope    = "envelope"
	flagDebug       = "debug"
	flagSentryDSN   = "sentry-dsn"
	flagRateLimit   = "rate-limit"
	flagAutoRefresh = "auto-refresh"
	flagMetrics     = "metrics"

	defaultEnvFile = ".env"
)

// app is the state shared by every subcommand for one invocation
type app struct {
	cfg         *config.Config
	envFile     string
	debug       bool
	autoRefresh bool
	metrics     bool

	logger   *logging.ZapLogger
	registry *prometheus.Registry
	client   *petsgo.Client
	closers  []func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "petsgo: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "petsgo",
		Short:         "PetsGo API client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd); err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				_ = a.close(cmd.ErrOrStderr())
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.envFile, flagEnvFile, defaultEnvFile, "dotenv file read before the environment")
	flags.String(flagBaseURL, "", "API base URL (PETSGO_BASE_URL)")
	flags.Duration(flagTimeout, 0, "per-request timeout (PETSGO_TIMEOUT), negative disables")
	flags.String(flagStore, "", "session file (PETSGO_TOKEN_STORE)")
	flags.String(flagStoreDSN, "", "sqlite:// or postgres:// session database (PETSGO_STORE_DSN)")
	flags.String(flagEnvelope, "", "envelope mode: auto, none or required (PETSGO_ENVELOPE)")
	flags.BoolVar(&a.debug, flagDebug, false, "debug logging")
	flags.String(flagSentryDSN, "", "Sentry DSN (PETSGO_SENTRY_DSN)")
	flags.Float64(flagRateLimit, 0, "max requests per second (PETSGO_RATE_LIMIT)")
	flags.BoolVar(&a.autoRefresh, flagAutoRefresh, true, "refresh the token and retry once on 401")
	flags.BoolVar(&a.metrics, flagMetrics, false, "print request metrics to stderr on exit")

	cmd.AddCommand(
		newQueryCommand(a, "get"),
		newQueryCommand(a, "delete"),
		newBodyCommand(a, "post"),
		newBodyCommand(a, "put"),
		newBodyCommand(a, "patch"),
		newLoginCommand(a),
		newRefreshCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newProfileCommand(a),
	)
	return cmd
}

// loadConfig reads the environment, then applies any flags given explicitly
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed(flagBaseURL) {
		cfg.BaseURL, _ = flags.GetString(flagBaseURL)
	}
	if flags.Changed(flagTimeout) {
		cfg.Timeout, _ = flags.GetDuration(flagTimeout)
	}
	if flags.Changed(flagStore) {
		cfg.TokenStore, _ = flags.GetString(flagStore)
	}
	if flags.Changed(flagStoreDSN) {
		cfg.StoreDSN, _ = flags.GetString(flagStoreDSN)
	}
	if flags.Changed(flagEnvelope) {
		cfg.Envelope, _ = flags.GetString(flagEnvelope)
	}
	if flags.Changed(flagSentryDSN) {
		cfg.SentryDSN, _ = flags.GetString(flagSentryDSN)
	}
	if flags.Changed(flagRateLimit) {
		cfg.RateLimit, _ = flags.GetFloat64(flagRateLimit)
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// open builds the logger, store and client, and restores the saved session
func (a *app) open(ctx context.Context) error {
	logger, err := logging.New(a.cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "logger init")
	}
	a.logger = logger

	store, err := a.openStore()
	if err != nil {
		return err
	}

	opts := &petsgo.ClientOptions{
		BaseURL:     a.cfg.BaseURL,
		Timeout:     a.cfg.Timeout,
		Envelope:    a.cfg.EnvelopeMode(),
		LenientJSON: a.cfg.LenientJSON,
		Store:       store,
		AutoRefresh: a.autoRefresh,
		Logger:      logger,
		RetryConfig: a.cfg.RetryConfig(),
		SentryDSN:   a.cfg.SentryDSN,
	}
	if a.cfg.RateLimit > 0 {
		opts.RateLimiter = rate.NewLimiter(rate.Limit(a.cfg.RateLimit), a.cfg.RateBurst)
	}
	if a.metrics {
		a.registry = prometheus.NewRegistry()
		collector, err := metrics.NewCollector(a.registry)
		if err != nil {
			return errors.Wrap(err, "metrics init")
		}
		opts.Hooks = collector.Hooks()
	}

	client, err := petsgo.NewClient(opts)
	if err != nil {
		return err
	}
	a.client = client

	if _, err := client.Auth.Restore(ctx); err != nil {
		logger.Warn("Could not restore session", "error", err)
	}
	return nil
}

func (a *app) openStore() (petsgo.Store, error) {
	if a.cfg.StoreDSN == "" {
		return petsgo.NewFileStore(a.cfg.TokenStore, a.logger), nil
	}
	store, closeFn, err := petsgo.OpenSQLStore(a.cfg.StoreDSN, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return store, nil
}

func (a *app) close(stderr io.Writer) error {
	if a.client != nil {
		a.client.Close()
	}
	if a.metrics && a.registry != nil {
		if err := writeMetrics(stderr, a.registry); err != nil {
			return err
		}
	}

	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return firstErr
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}

// run executes fn with the open client and releases everything afterwards,
// including when fn fails
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx, cancel := a.requestContext(cmd.Context())
	defer cancel()

	err := fn(ctx)
	if closeErr := a.close(cmd.ErrOrStderr()); err == nil {
		err = closeErr
	}
	return err
}

// requestContext bounds a command by the client timeout plus slack for a
// refresh and retry
func (a *app) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, 3*a.cfg.Timeout+time.Second)
}
