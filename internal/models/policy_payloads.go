package models

// UpdateResponsePolicyPayload 定义了更新回复策略的请求体，所有字段可选
type UpdateResponsePolicyPayload struct {
	Tone               *ResponseTone `json:"tone,omitempty" binding:"omitempty,oneof=friendly formal professional"`
	Language           *string       `json:"language,omitempty" binding:"omitempty,max=16"`
	AutoReplyEnabled   *bool         `json:"autoReplyEnabled,omitempty"`
	EscalateThreshold  *int          `json:"escalateThreshold,omitempty" binding:"omitempty,min=1,max=5"`
	EscalateToRole     *string       `json:"escalateToRole,omitempty" binding:"omitempty,max=50"`
	CustomInstructions *string       `json:"customInstructions,omitempty" binding:"omitempty,max=4000"`
	CommonIssues       []string      `json:"commonIssues,omitempty" binding:"omitempty,dive,max=500"`
}
