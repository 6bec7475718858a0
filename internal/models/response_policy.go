package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResponseTone 定义了 AI 回复的语气
type ResponseTone string

const (
	ToneFriendly     ResponseTone = "friendly"
	ToneFormal       ResponseTone = "formal"
	ToneProfessional ResponseTone = "professional"
)

const (
	// LanguageAuto 表示根据反馈文本自动检测语言
	LanguageAuto = "auto"

	DefaultEscalateThreshold = 2
	DefaultEscalateRole      = RoleManager
	DefaultTone              = ToneProfessional
)

// IsValid reports whether t is a supported tone.
func (t ResponseTone) IsValid() bool {
	switch t {
	case ToneFriendly, ToneFormal, ToneProfessional:
		return true
	}
	return false
}

// ResponsePolicy 是每个公司唯一的回复与升级配置
type ResponsePolicy struct {
	ID                 string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID          string         `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;uniqueIndex"`
	Tone               ResponseTone   `json:"tone" gorm:"column:tone;type:varchar(20);not null"`
	Language           string         `json:"language" gorm:"column:language;size:16;not null"`
	AutoReplyEnabled   bool           `json:"autoReplyEnabled" gorm:"column:auto_reply_enabled;not null"`
	EscalateThreshold  int            `json:"escalateThreshold" gorm:"column:escalate_threshold;not null"`
	EscalateToRole     string         `json:"escalateToRole" gorm:"column:escalate_to_role;size:50;not null"`
	CustomInstructions *string        `json:"customInstructions,omitempty" gorm:"column:custom_instructions;type:text"`
	CommonIssues       datatypes.JSON `json:"commonIssues,omitempty" gorm:"column:common_issues" swaggertype:"object"`
	CreatedAt          time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt          time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 ResponsePolicy 结构体对应的数据库表名
func (ResponsePolicy) TableName() string {
	return "response_policies"
}

// BeforeCreate GORM hook 为 ResponsePolicy 生成 UUID
func (p *ResponsePolicy) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// NewDefaultResponsePolicy returns the policy a company gets on first use.
func NewDefaultResponsePolicy(companyID string) *ResponsePolicy {
	return &ResponsePolicy{
		CompanyID:         companyID,
		Tone:              DefaultTone,
		Language:          LanguageAuto,
		AutoReplyEnabled:  true,
		EscalateThreshold: DefaultEscalateThreshold,
		EscalateToRole:    DefaultEscalateRole,
	}
}

// ShouldAutoReply returns the stored auto-reply flag.
func (p *ResponsePolicy) ShouldAutoReply() bool {
	return p.AutoReplyEnabled
}

// Threshold returns the escalation threshold, defaulting to 2 when unset.
func (p *ResponsePolicy) Threshold() int {
	if p.EscalateThreshold <= 0 {
		return DefaultEscalateThreshold
	}
	return p.EscalateThreshold
}

// ShouldEscalate reports whether a rating is at or below the escalation threshold.
// Callers must not pass a missing rating; out-of-range ratings never escalate.
func (p *ResponsePolicy) ShouldEscalate(rating int) bool {
	if !ValidRating(rating) {
		return false
	}
	return rating <= p.Threshold()
}

// FixedLanguage returns the configured language, or "" when the policy auto-detects.
func (p *ResponsePolicy) FixedLanguage() string {
	if p.Language == "" || p.Language == LanguageAuto {
		return ""
	}
	return p.Language
}

// EscalationRole returns the role escalations are routed to.
func (p *ResponsePolicy) EscalationRole() string {
	if p.EscalateToRole == "" {
		return DefaultEscalateRole
	}
	return p.EscalateToRole
}
