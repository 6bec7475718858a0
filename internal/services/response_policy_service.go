package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/feedback_management/internal/ai"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/utils"
)

// ResponsePolicyService 定义了回复策略服务的接口
type ResponsePolicyService interface {
	// Get 返回公司的策略，首次访问时以默认值创建
	Get(ctx context.Context, companyID string) (*models.ResponsePolicy, error)
	Update(ctx context.Context, companyID string, payload *models.UpdateResponsePolicyPayload) (*models.ResponsePolicy, error)
}

type responsePolicyService struct {
	repo repositories.ResponsePolicyRepository
}

// NewResponsePolicyService 创建一个新的 ResponsePolicyService 实例
func NewResponsePolicyService(repo repositories.ResponsePolicyRepository) ResponsePolicyService {
	return &responsePolicyService{repo: repo}
}

func (s *responsePolicyService) Get(ctx context.Context, companyID string) (*models.ResponsePolicy, error) {
	policy, err := s.repo.GetOrCreate(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load response policy: %w", err)
	}
	return policy, nil
}

func (s *responsePolicyService) Update(ctx context.Context, companyID string, payload *models.UpdateResponsePolicyPayload) (*models.ResponsePolicy, error) {
	policy, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if payload.Tone != nil {
		if !payload.Tone.IsValid() {
			return nil, fmt.Errorf("%w: unknown tone %q", ErrInvalidPolicy, *payload.Tone)
		}
		policy.Tone = *payload.Tone
	}
	if payload.Language != nil {
		lang := strings.TrimSpace(*payload.Language)
		if ai.WantsDetection(lang) {
			policy.Language = models.LanguageAuto
		} else if code, ok := ai.NormalizeLanguage(lang); ok {
			policy.Language = code
		} else {
			return nil, fmt.Errorf("%w: unknown language %q", ErrInvalidPolicy, lang)
		}
	}
	if payload.AutoReplyEnabled != nil {
		policy.AutoReplyEnabled = *payload.AutoReplyEnabled
	}
	if payload.EscalateThreshold != nil {
		if !models.ValidRating(*payload.EscalateThreshold) {
			return nil, fmt.Errorf("%w: escalation threshold must be between 1 and 5", ErrInvalidPolicy)
		}
		policy.EscalateThreshold = *payload.EscalateThreshold
	}
	if payload.EscalateToRole != nil {
		role := strings.TrimSpace(*payload.EscalateToRole)
		if role == "" {
			return nil, fmt.Errorf("%w: escalation role is required", ErrInvalidPolicy)
		}
		policy.EscalateToRole = role
	}
	if payload.CustomInstructions != nil {
		instr := strings.TrimSpace(*payload.CustomInstructions)
		if instr == "" {
			policy.CustomInstructions = nil
		} else {
			policy.CustomInstructions = &instr
		}
	}
	if payload.CommonIssues != nil {
		issues := make([]string, 0, len(payload.CommonIssues))
		for _, issue := range payload.CommonIssues {
			issues = append(issues, strings.TrimSpace(issue))
		}
		encoded, err := json.Marshal(utils.CompactStrings(issues))
		if err != nil {
			return nil, fmt.Errorf("encode common issues: %w", err)
		}
		policy.CommonIssues = datatypes.JSON(encoded)
	}

	if err := s.repo.Update(ctx, policy); err != nil {
		return nil, fmt.Errorf("update response policy: %w", err)
	}
	return policy, nil
}

// commonIssues 解析策略中的常见问题列表，格式错误时忽略
func commonIssues(policy *models.ResponsePolicy) []string {
	if len(policy.CommonIssues) == 0 {
		return nil
	}
	var issues []string
	if err := json.Unmarshal(policy.CommonIssues, &issues); err != nil {
		return nil
	}
	return issues
}
