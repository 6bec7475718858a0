package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewSendRemindersCommand 把到期的提醒入队一次后退出，适合由 cron 触发
func NewSendRemindersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminders",
		Short: "Enqueue reminders for feedback requests that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.reminder.ScheduleDueReminders(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminders enqueued\n", n)
			return nil
		},
	}
}

// NewSyncReviewsCommand 同步单个公司，或为所有已连接 Google 的公司入队
func NewSyncReviewsCommand() *cobra.Command {
	var companyID string

	cmd := &cobra.Command{
		Use:   "sync-reviews",
		Short: "Import Google reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if companyID == "" {
				n, err := a.reviews.EnqueueAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "review sync enqueued for %d companies\n", n)
				return nil
			}

			run, err := a.reviews.Sync(ctx, companyID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync %s: %s, %d fetched, %d synced, %d skipped, %d errors\n",
				run.ID, run.Status, run.FetchedCount, run.SyncedCount, run.SkippedCount, run.ErrorCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "Sync only this company, inline (default: enqueue every connected company)")
	return cmd
}
