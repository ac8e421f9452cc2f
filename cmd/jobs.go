package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stablepay-io/ms-go-notify/app/service"
	"github.com/stablepay-io/ms-go-notify/config"
)

var (
	workerMode bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Evaluate pending payments against chain state",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"monitor",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.MonitorInterval },
			func(s *service.NotifyService, ctx context.Context) error {
				return s.RunMonitorBatch(ctx)
			},
		)
	},
}

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Run webhook delivery related commands",
}

var deliveriesDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch deliveries whose retry backoff has elapsed",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"deliveries_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.DispatchInterval },
			func(s *service.NotifyService, ctx context.Context) error {
				return s.RunDispatchDueBatch(ctx)
			},
		)
	},
}

var deliveriesRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Finalize delivery attempts abandoned by a crashed worker",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"deliveries_recover",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RecoverInterval },
			func(s *service.NotifyService, ctx context.Context) error {
				return s.RunRecoverStaleBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(deliveriesCmd)
	deliveriesCmd.AddCommand(deliveriesDispatchCmd)
	deliveriesCmd.AddCommand(deliveriesRecoverCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.NotifyService, ctx context.Context) error,
) {
	cfg, notifyService, locker, cleanup := mustCreateNotifyService()
	defer cleanup()

	interval := intervalResolver(cfg)
	guarded := func(ctx context.Context) error {
		return withJobLock(ctx, locker, name, interval, func() error {
			return fn(notifyService, ctx)
		})
	}

	if workerMode {
		runWorker(name, interval, guarded)
		return
	}

	runJob(name, func() error { return guarded(context.Background()) })
}

// withJobLock keeps concurrently deployed workers from running the same job
// tick twice. Without redis the lock is skipped and deployment must
// guarantee a single instance per job.
func withJobLock(ctx context.Context, locker *redislock.Client, name string, ttl time.Duration, fn func() error) error {
	if locker == nil {
		return fn()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	lock, err := locker.Obtain(ctx, "jobs:"+name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logrus.WithField("job", name).Debug("job lock held elsewhere, skipping tick")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logrus.WithError(err).WithField("job", name).Warn("releasing job lock failed")
		}
	}()

	return fn()
}

func runWorker(name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
