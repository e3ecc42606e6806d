package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/transport"
	"github.com/ppiankov/ranger/internal/worker"
)

// gapsPerIteration bounds how many noted knowledge gaps one loop iteration learns
const gapsPerIteration = 5

var (
	serveAddr         string
	serveNoTelegram   bool
	serveNoBackground bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the Telegram bot and the background loop",
	Long: `Serve runs until interrupted:
- HTTP API under /api/v1, health at /healthz and Prometheus metrics at /metrics
- Telegram bot when telegram.token is set
- Background loop: consolidation, improvement checks, knowledge gap expansion
- Cron jobs: database backup, pruning of file backups and expired cache entries

Example:
  ranger serve --addr :9090
  TELEGRAM_BOT_TOKEN=... ranger serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveNoTelegram, "no-telegram", false, "do not start the Telegram bot")
	serveCmd.Flags().BoolVar(&serveNoBackground, "no-background", false, "do not start the background loop")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg, a.metrics); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	g, gctx := errgroup.WithContext(ctx)

	server := transport.NewHTTPServer(a.pipeline, reg, a.logger, a.metrics)
	g.Go(func() error {
		return server.Run(gctx, addr)
	})

	if a.cfg.Telegram.Token != "" && !serveNoTelegram {
		bot, err := transport.NewTelegramBot(a.cfg.Telegram, a.pipeline, a.logger, a.metrics)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	if !serveNoBackground {
		loop, err := newBackgroundLoop(a)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return loop.Run(gctx)
		})
	}

	a.logger.Info("ranger serving",
		zap.String("version", version),
		zap.String("addr", addr),
		zap.String("db", a.store.Path()),
		zap.Bool("telegram", a.cfg.Telegram.Token != "" && !serveNoTelegram))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	a.logger.Info("ranger stopped")
	return nil
}

// newBackgroundLoop wires the periodic maintenance tasks
func newBackgroundLoop(a *app) (*worker.Loop, error) {
	cfg := a.cfg
	p := a.pipeline
	loop := worker.NewLoop(cfg.Loop.Interval, cfg.Loop.Backoff, a.logger, a.metrics)

	loop.Every("consolidate", func(ctx context.Context) error {
		_, err := p.Consolidate(ctx)
		return err
	})
	loop.Every("check-improvements", p.CheckImprovements)
	loop.Every("expand-gaps", func(ctx context.Context) error {
		p.Expand(ctx, gapsPerIteration)
		return nil
	})
	loop.Every("refresh-stats", func(ctx context.Context) error {
		n, err := p.Store().Count(ctx)
		if err != nil {
			return err
		}
		a.metrics.SetKnowledgeRecords(n)
		return nil
	})

	if err := loop.Schedule("backup-db", cfg.Loop.BackupSchedule, func(ctx context.Context) error {
		if err := os.MkdirAll(cfg.Storage.BackupDir, 0755); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}
		_, err := p.Store().Backup(ctx, cfg.Storage.BackupDir)
		return err
	}); err != nil {
		return nil, err
	}
	if err := loop.Schedule("prune", cfg.Loop.PruneSchedule, func(context.Context) error {
		backups, err := p.Engine().PruneBackups(cfg.SelfMod.KeepBackups)
		if err != nil {
			return err
		}
		cached, err := p.PruneCache()
		if err != nil {
			return err
		}
		a.logger.Info("pruned",
			zap.Int("file_backups", backups),
			zap.Int("cache_entries", cached))
		return nil
	}); err != nil {
		return nil, err
	}
	return loop, nil
}
