package services

import (
	"errors"
	"fmt"
)

// 服务层错误
var (
	ErrCompanyNotFound        = errors.New("company not found")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrFeedbackNotFound       = errors.New("feedback not found")
	ErrRequestNotFound        = errors.New("feedback request not found")
	ErrReplyNotFound          = errors.New("feedback reply not found")
	ErrTaskNotFound           = errors.New("task not found")
	ErrInvalidRating          = errors.New("rating must be between 1 and 5")
	ErrEmptySubmission        = errors.New("a rating or a comment is required")
	ErrAlreadySubmitted       = errors.New("feedback was already submitted for this request")
	ErrTokenInvalid           = errors.New("feedback link is invalid or has expired")
	ErrNoExternalAccount      = errors.New("company has no connected Google Business Profile")
	ErrRequestAlreadyAnswered = errors.New("feedback request no longer awaits a response")
	ErrInvalidChannel         = errors.New("delivery channel must be one of sms, email, qr")
	ErrMissingContact         = errors.New("customer has no contact for the selected channel")
	ErrDeliveryFailed         = errors.New("feedback request could not be delivered")
	ErrInvalidPolicy          = errors.New("invalid response policy")
	ErrReplyNotPending        = errors.New("only pending replies can be sent")
	ErrEmptyReply             = errors.New("reply content is required")
	ErrReplyExists            = errors.New("feedback already has an AI reply")
)

// PartialFailureError 表示升级工单已创建，但分配、通知或状态标记失败
type PartialFailureError struct {
	TaskID string
	Stage  string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("escalation task %s created but %s failed: %v", e.TaskID, e.Stage, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// 部分失败的阶段
const (
	StageAssign = "assign"
	StageNotify = "notify"
	StageMark   = "mark"
)
