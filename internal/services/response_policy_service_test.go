package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
)

func TestResponsePolicyUpdate(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	svc := NewResponsePolicyService(f.policies)

	policy, err := svc.Get(f.ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageAuto, policy.Language)

	tone := models.ToneFriendly
	updated, err := svc.Update(f.ctx, company.ID, &models.UpdateResponsePolicyPayload{
		Tone:              &tone,
		Language:          strPtr("pt-BR"),
		EscalateThreshold: intPtr(3),
		CommonIssues:      []string{" parking ", "", "wait times"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ToneFriendly, updated.Tone)
	assert.Equal(t, "pt", updated.Language)
	assert.Equal(t, 3, updated.EscalateThreshold)
	assert.Equal(t, []string{"parking", "wait times"}, commonIssues(updated))

	back, err := svc.Update(f.ctx, company.ID, &models.UpdateResponsePolicyPayload{Language: strPtr("auto")})
	require.NoError(t, err)
	assert.Equal(t, models.LanguageAuto, back.Language)
	assert.Equal(t, 3, back.EscalateThreshold)
}

func TestResponsePolicyUpdateRejectsInvalidValues(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	svc := NewResponsePolicyService(f.policies)

	badTone := models.ResponseTone("sarcastic")
	tests := []struct {
		name    string
		payload models.UpdateResponsePolicyPayload
	}{
		{name: "tone", payload: models.UpdateResponsePolicyPayload{Tone: &badTone}},
		{name: "language", payload: models.UpdateResponsePolicyPayload{Language: strPtr("not a language")}},
		{name: "threshold", payload: models.UpdateResponsePolicyPayload{EscalateThreshold: intPtr(9)}},
		{name: "role", payload: models.UpdateResponsePolicyPayload{EscalateToRole: strPtr("  ")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := tt.payload
			_, err := svc.Update(f.ctx, company.ID, &payload)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}
