// Package flow defines the ingestion steps and their transition rules. The
// step is not stored as its own column: it is derived from which session
// fields have been filled, so a restarted process resumes exactly where the
// durable row says the uploader is.
package flow

import (
	"fmt"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

type Step string

const (
	AwaitingTitle       Step = "awaiting_title"
	AwaitingDescription Step = "awaiting_description"
	AwaitingCover       Step = "awaiting_cover"
	CollectingParts     Step = "collecting_parts"
	Finalized           Step = "finalized"
)

// Next returns the step that follows s in the forward-only flow.
func Next(s Step) Step {
	switch s {
	case AwaitingTitle:
		return AwaitingDescription
	case AwaitingDescription:
		return AwaitingCover
	case AwaitingCover:
		return CollectingParts
	case CollectingParts:
		return Finalized
	default:
		return Finalized
	}
}

// CanTransition reports whether from -> to is legal. The flow is strictly
// forward, one step at a time; staying on the same step (failed validation
// re-prompt) is always allowed.
func CanTransition(from, to Step) bool {
	if from == to {
		return from != Finalized
	}
	return Next(from) == to && from != Finalized
}

func ValidateTransition(from, to Step) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	return nil
}

// StepFor derives the current step from the durable session row.
func StepFor(s *models.UploadSession) Step {
	switch {
	case s == nil:
		return Finalized
	case s.Status == models.SessionUploadingParts:
		return CollectingParts
	case s.Title == nil:
		return AwaitingTitle
	case s.Description == nil:
		return AwaitingDescription
	default:
		return AwaitingCover
	}
}
