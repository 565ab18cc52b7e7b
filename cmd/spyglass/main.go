// Command spyglass analyzes a product page against marketplace prices.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spyglasshq/spyglass/internal/aggregate"
	"github.com/spyglasshq/spyglass/internal/config"
	"github.com/spyglasshq/spyglass/internal/extract"
	"github.com/spyglasshq/spyglass/internal/fetch"
	"github.com/spyglasshq/spyglass/internal/fingerprint"
	"github.com/spyglasshq/spyglass/internal/harvest"
	"github.com/spyglasshq/spyglass/internal/metrics"
	"github.com/spyglasshq/spyglass/internal/pipeline"
	"github.com/spyglasshq/spyglass/internal/report"
	"github.com/spyglasshq/spyglass/internal/storage"
	"github.com/spyglasshq/spyglass/internal/storage/jsonbackend"
	"github.com/spyglasshq/spyglass/internal/storage/postgres"
	"github.com/spyglasshq/spyglass/internal/storage/sqlite"
	"github.com/spyglasshq/spyglass/internal/summary"
	"github.com/spyglasshq/spyglass/pkg/proxy"
	"github.com/spyglasshq/spyglass/pkg/ratelimit"
	"github.com/spyglasshq/spyglass/pkg/useragent"
)

var (
	flagConfig  string
	flagFormat  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "spyglass",
		Short:         "Compare a product's price against the marketplace median",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default spyglass.yaml)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	check := &cobra.Command{
		Use:   "check <product-url>",
		Short: "Run one price analysis for a product page URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	check.Flags().StringVarP(&flagFormat, "format", "f", "text", "output format: text, json or html")
	root.AddCommand(check)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.Start(cfg.Metrics.Port)
		defer func() { _ = metricsSrv.Stop(context.Background()) }()
	}

	audit, err := openAudit(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
	}

	p, err := buildPipeline(cfg, audit, logger)
	if err != nil {
		return err
	}

	res, err := p.Analyze(ctx, args[0])
	if err != nil {
		return err
	}

	switch flagFormat {
	case "json":
		return report.WriteJSON(os.Stdout, res)
	case "html":
		return report.WriteHTML(os.Stdout, res)
	case "text":
		return report.WriteText(os.Stdout, res)
	default:
		return fmt.Errorf("unknown format %q", flagFormat)
	}
}

func openAudit(ctx context.Context, cfg config.AuditConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "json":
		return jsonbackend.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

func buildPipeline(cfg *config.Config, audit storage.Backend, logger *slog.Logger) (*pipeline.Pipeline, error) {
	var proxyPool *proxy.Pool
	if len(cfg.Fetch.Proxies) > 0 || cfg.Fetch.ProxyFile != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		for _, raw := range cfg.Fetch.Proxies {
			if err := proxyPool.Add(raw); err != nil {
				return nil, err
			}
		}
		if cfg.Fetch.ProxyFile != "" {
			if err := proxyPool.AddFromFile(cfg.Fetch.ProxyFile); err != nil {
				return nil, err
			}
		}
	}

	fetcher, err := fetch.New(fetch.Config{
		Timeout:       cfg.Fetch.Timeout(),
		MaxRedirects:  cfg.Fetch.MaxRedirects,
		UseCookieJar:  cfg.Fetch.UseCookieJar,
		ProxyPool:     proxyPool,
		UAPool:        useragent.NewPool(cfg.Fetch.UserAgents),
		Fingerprint:   fingerprint.Profile(cfg.Fetch.Fingerprint),
		Limiter:       ratelimit.New(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Jitter),
		Audit:         audit,
		RespectRobots: cfg.Fetch.RespectRobots,
		RobotsAgent:   cfg.Fetch.RobotsAgent,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	var gen summary.Generator
	if cfg.Summary.Enabled {
		gen, err = summary.NewOpenAI(summary.OpenAIConfig{
			BaseURL: cfg.Summary.BaseURL,
			APIKey:  cfg.Summary.APIKey,
			Model:   cfg.Summary.Model,
			Timeout: time.Duration(cfg.Summary.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	return pipeline.New(
		fetcher,
		extract.New(cfg.Source),
		harvest.New(cfg.Marketplace, fetcher, logger),
		aggregate.New(aggregate.Config{IQRMultiplier: cfg.Aggregate.IQRMultiplier}),
		summary.NewRequester(gen, logger),
		logger,
	)
}
