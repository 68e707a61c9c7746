package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Step
		to   Step
		ok   bool
	}{
		{"title to description", AwaitingTitle, AwaitingDescription, true},
		{"description to cover", AwaitingDescription, AwaitingCover, true},
		{"cover to parts", AwaitingCover, CollectingParts, true},
		{"parts to finalized", CollectingParts, Finalized, true},
		{"retry same step", AwaitingCover, AwaitingCover, true},
		{"no skipping", AwaitingTitle, AwaitingCover, false},
		{"no going back", CollectingParts, AwaitingTitle, false},
		{"finalized is terminal", Finalized, Finalized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestStepFor(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		sess *models.UploadSession
		want Step
	}{
		{"nil session", nil, Finalized},
		{"fresh session", &models.UploadSession{Status: models.SessionInProgress}, AwaitingTitle},
		{
			"title set",
			&models.UploadSession{Status: models.SessionInProgress, Title: str("John Wick")},
			AwaitingDescription,
		},
		{
			"description set",
			&models.UploadSession{Status: models.SessionInProgress, Title: str("John Wick"), Description: str("Action/2024")},
			AwaitingCover,
		},
		{
			"uploading parts",
			&models.UploadSession{Status: models.SessionUploadingParts, Title: str("John Wick"), Description: str("Action/2024"), CoverRef: str("cover-1")},
			CollectingParts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StepFor(tt.sess))
		})
	}
}
