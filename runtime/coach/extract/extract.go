// Package extract declares the boundary to the language models that turn
// free-form athlete messages into structured decisions and modification
// attributes. The controller consumes these interfaces; concrete
// implementations live with whatever model provider hosts them.
package extract

import (
	"context"
	"time"

	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/plan/modification"
)

type (
	// Classifier maps a user message plus conversation context to an
	// orchestration decision. Implementations return decisions that pass
	// decision.OrchestrationDecision.Validate; the controller treats
	// anything else as a contract violation.
	Classifier interface {
		Classify(ctx context.Context, userInput string, conversation []Message) (*decision.OrchestrationDecision, error)
	}

	// Extractor pulls modification attributes out of a user message for a
	// given scope. Fields the message does not mention come back zero;
	// relative dates are returned as written for the adapter to resolve
	// against today.
	Extractor interface {
		ExtractDay(ctx context.Context, userMessage string, today time.Time) (*modification.RawDay, error)
		ExtractWeek(ctx context.Context, userMessage string, today time.Time) (*modification.RawWeek, error)
		ExtractSeason(ctx context.Context, userMessage string, today time.Time) (*modification.RawSeason, error)
		ExtractRace(ctx context.Context, userMessage string, today time.Time) (*modification.RawRace, error)
	}

	// Message is one prior turn of the conversation handed to the
	// classifier as context.
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
)

// Roles for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
