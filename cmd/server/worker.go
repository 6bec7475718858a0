package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/wait"
)

type WorkerFlags struct {
	ReminderInterval   time.Duration
	ReviewSyncInterval time.Duration
}

func NewWorkerFlags() *WorkerFlags {
	return &WorkerFlags{
		ReminderInterval:   15 * time.Minute,
		ReviewSyncInterval: 6 * time.Hour,
	}
}

func (f *WorkerFlags) BindFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&f.ReminderInterval, "reminder-interval", f.ReminderInterval, "How often to schedule due reminders")
	fs.DurationVar(&f.ReviewSyncInterval, "review-sync-interval", f.ReviewSyncInterval, "How often to enqueue Google review syncs (0 disables)")
}

var workerFlags = NewWorkerFlags()

func NewWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs and run the periodic schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runWorker(ctx)
		},
	}
	workerFlags.BindFlags(cmd.Flags())
	return cmd
}

// staleRequeuer 由支持回收僵死任务的队列实现（数据库与 Redis 队列均实现）
type staleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// runWorker 运行 worker 和定时调度，直到 ctx 取消
func (a *app) runWorker(ctx context.Context) error {
	w := a.newWorker()

	go wait.UntilWithContext(ctx, func(ctx context.Context) {
		n, err := a.reminder.ScheduleDueReminders(ctx, time.Now())
		if err != nil {
			log.WithError(err).Error("scheduling reminders")
			return
		}
		if n > 0 {
			log.WithField("count", n).Info("reminders scheduled")
		}
	}, workerFlags.ReminderInterval)

	if workerFlags.ReviewSyncInterval > 0 {
		go wait.UntilWithContext(ctx, func(ctx context.Context) {
			n, err := a.reviews.EnqueueAll(ctx)
			if err != nil {
				log.WithError(err).Error("enqueueing review syncs")
				return
			}
			log.WithField("companies", n).Debug("review syncs enqueued")
		}, workerFlags.ReviewSyncInterval)
	}

	if rq, ok := a.queue.(staleRequeuer); ok && a.cfg.Queue.StaleAfter > 0 {
		go wait.UntilWithContext(ctx, func(ctx context.Context) {
			n, err := rq.RequeueStale(ctx, a.cfg.Queue.StaleAfter)
			if err != nil {
				log.WithError(err).Error("requeueing stale jobs")
				return
			}
			if n > 0 {
				log.WithField("count", n).Warn("requeued stale jobs")
			}
		}, a.cfg.Queue.StaleAfter/2)
	}

	return w.Run(ctx)
}
