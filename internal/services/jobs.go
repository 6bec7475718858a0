package services

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
)

// JobHandlers 把四种队列任务分派给对应的工作流
type JobHandlers struct {
	Replies     *ReplyWorkflow
	Escalations *EscalationWorkflow
	Reminders   ReminderService
	ReviewSync  ReviewSyncService
}

// Register 在 worker 上注册所有任务处理函数
func (h *JobHandlers) Register(w *queue.Worker) {
	w.Register(queue.TypeGenerateReply, h.generateReply)
	w.Register(queue.TypeEscalateReply, h.escalateReply)
	w.Register(queue.TypeSendReminder, h.sendReminder)
	w.Register(queue.TypeSyncReviews, h.syncReviews)
}

func (h *JobHandlers) generateReply(ctx context.Context, job *models.Job) error {
	var payload queue.GenerateReplyPayload
	if err := queue.DecodePayload(job, &payload); err != nil {
		return err
	}
	_, err := h.Replies.Run(ctx, payload.FeedbackID)
	return dropIfMissing(job, err)
}

func (h *JobHandlers) escalateReply(ctx context.Context, job *models.Job) error {
	var payload queue.EscalateReplyPayload
	if err := queue.DecodePayload(job, &payload); err != nil {
		return err
	}
	_, err := h.Escalations.Run(ctx, payload.RequestID, payload.ReplyID)
	return dropIfMissing(job, err)
}

func (h *JobHandlers) sendReminder(ctx context.Context, job *models.Job) error {
	var payload queue.SendReminderPayload
	if err := queue.DecodePayload(job, &payload); err != nil {
		return err
	}
	err := h.Reminders.SendReminder(ctx, payload.RequestID)
	if err != nil && queue.IsPermanent(err) {
		// 已回复或已过期的请求不再需要提醒，不算失败
		log.WithError(err).WithFields(log.Fields{"jobID": job.ID, "requestID": payload.RequestID}).Info("reminder dropped")
		return nil
	}
	return err
}

func (h *JobHandlers) syncReviews(ctx context.Context, job *models.Job) error {
	var payload queue.SyncReviewsPayload
	if err := queue.DecodePayload(job, &payload); err != nil {
		return err
	}
	_, err := h.ReviewSync.Sync(ctx, payload.CompanyID)
	return err
}

// dropIfMissing 目标记录已不存在时记录日志并完成任务，不再重试
func dropIfMissing(job *models.Job, err error) error {
	if err == nil {
		return nil
	}
	for _, missing := range []error{ErrFeedbackNotFound, ErrRequestNotFound, ErrReplyNotFound, ErrCompanyNotFound} {
		if errors.Is(err, missing) {
			log.WithError(err).WithFields(log.Fields{"jobID": job.ID, "jobType": job.Type}).Warn("job target no longer exists, dropping job")
			return nil
		}
	}
	return err
}
