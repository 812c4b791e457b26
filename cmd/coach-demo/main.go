// Command coach-demo runs a scripted conversation against the execution
// controller with stubbed model collaborators and an in-memory store. It
// exists to exercise the full turn pipeline end to end without a model
// provider or a database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/stridelabs/stride/runtime/coach/controller"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/coach/extract"
	"github.com/stridelabs/stride/runtime/coach/telemetry"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/modify"
	"github.com/stridelabs/stride/runtime/plan/store"
	"github.com/stridelabs/stride/runtime/plan/store/inmem"
)

const athleteID = "demo.athlete"

// turn pairs a scripted user message with the decision and extraction a
// model provider would have produced for it.
type turn struct {
	input    string
	decision *decision.OrchestrationDecision
	day      *modification.RawDay
}

// scriptedClassifier returns the decision scripted for each message.
type scriptedClassifier struct {
	decisions map[string]*decision.OrchestrationDecision
}

func (c *scriptedClassifier) Classify(_ context.Context, userInput string, _ []extract.Message) (*decision.OrchestrationDecision, error) {
	d, ok := c.decisions[userInput]
	if !ok {
		return &decision.OrchestrationDecision{
			Intent:     decision.IntentOffTopic,
			Horizon:    decision.HorizonNone,
			Confidence: 0.9,
			Action:     decision.ActionNoTool,
			ToolName:   "none",
			UserInput:  userInput,
		}, nil
	}
	return d, nil
}

// scriptedExtractor returns the day attributes scripted for each message.
// Other scopes come back empty.
type scriptedExtractor struct {
	days map[string]*modification.RawDay
}

func (e *scriptedExtractor) ExtractDay(_ context.Context, userMessage string, _ time.Time) (*modification.RawDay, error) {
	if d, ok := e.days[userMessage]; ok {
		return d, nil
	}
	return &modification.RawDay{}, nil
}

func (e *scriptedExtractor) ExtractWeek(context.Context, string, time.Time) (*modification.RawWeek, error) {
	return &modification.RawWeek{}, nil
}

func (e *scriptedExtractor) ExtractSeason(context.Context, string, time.Time) (*modification.RawSeason, error) {
	return &modification.RawSeason{}, nil
}

func (e *scriptedExtractor) ExtractRace(context.Context, string, time.Time) (*modification.RawRace, error) {
	return &modification.RawRace{}, nil
}

// stubBackend answers schedule queries and coherence checks locally.
type stubBackend struct {
	store store.Store
}

func (b *stubBackend) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "detect_incoherence":
		return map[string]any{"coherent": true}, nil
	case "get_schedule":
		start := plan.Day(time.Now())
		sessions, err := b.store.GetInRange(ctx, athleteID, start, start.AddDate(0, 0, 6))
		if err != nil {
			return nil, err
		}
		summary := fmt.Sprintf("You have %d session(s) planned over the next week.", len(sessions))
		return map[string]any{"summary": summary}, nil
	default:
		return nil, fmt.Errorf("tool %q is not scripted", name)
	}
}

func main() {
	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))

	s := inmem.New()
	if err := seedPlan(ctx, s); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "seed plan"})
		os.Exit(1)
	}

	m, err := modify.New(modify.Options{Store: s, Logger: telemetry.NewClueLogger()})
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "build modifier"})
		os.Exit(1)
	}

	script := buildScript()
	decisions := make(map[string]*decision.OrchestrationDecision, len(script))
	days := make(map[string]*modification.RawDay, len(script))
	for _, t := range script {
		decisions[t.input] = t.decision
		if t.day != nil {
			days[t.input] = t.day
		}
	}

	c, err := controller.New(controller.Options{
		Classifier: &scriptedClassifier{decisions: decisions},
		Extractor:  &scriptedExtractor{days: days},
		Backend:    &stubBackend{store: s},
		Modifier:   m,
		Store:      s,
		Logger:     telemetry.NewClueLogger(),
	})
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "build controller"})
		os.Exit(1)
	}

	conversationID := uuid.NewString()
	for _, t := range script {
		fmt.Printf("athlete> %s\n", t.input)
		reply, err := c.Execute(ctx, controller.Request{
			AthleteID:      athleteID,
			ConversationID: conversationID,
			UserInput:      t.input,
		})
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "turn failed"})
			os.Exit(1)
		}
		fmt.Printf("coach>   %s\n\n", reply)
	}
}

// seedPlan stores a one-week plan: easy runs Tuesday and Thursday, a long
// run Saturday.
func seedPlan(ctx context.Context, s store.Store) error {
	today := plan.Day(time.Now())
	mk := func(offset int, intent plan.Intent, miles float64) *plan.Session {
		return &plan.Session{
			ID:            uuid.NewString(),
			AthleteID:     athleteID,
			Date:          today.AddDate(0, 0, offset),
			Intent:        intent,
			DistanceMiles: &miles,
			CreatedAt:     time.Now().UTC(),
		}
	}
	return s.InsertSessions(ctx, []*plan.Session{
		mk(1, plan.IntentEasy, 5),
		mk(3, plan.IntentEasy, 4),
		mk(5, plan.IntentLong, 12),
	})
}

func buildScript() []turn {
	tomorrow := plan.Day(time.Now()).AddDate(0, 0, 1).Format("2006-01-02")
	six := 6.0
	return []turn{
		{
			input: "hi coach",
			decision: &decision.OrchestrationDecision{
				Intent:     decision.IntentGreet,
				Horizon:    decision.HorizonNone,
				Confidence: 0.95,
				Action:     decision.ActionNoTool,
				ToolName:   "none",
			},
		},
		{
			input: "what does my week look like?",
			decision: &decision.OrchestrationDecision{
				Intent:     decision.IntentExplain,
				Horizon:    decision.HorizonWeek,
				Confidence: 0.9,
				Action:     decision.ActionCallTool,
				ToolName:   "get_schedule",
				ReadOnly:   true,
				QueryType:  "schedule",
			},
		},
		{
			input: "make tomorrow's run longer",
			decision: &decision.OrchestrationDecision{
				Intent:     decision.IntentModify,
				Horizon:    decision.HorizonDay,
				Confidence: 0.9,
				Action:     decision.ActionCallTool,
				ToolName:   "modify",
			},
			day: &modification.RawDay{
				ChangeType:    "adjust_distance",
				DistanceMiles: &six,
			},
		},
		{
			input: "tomorrow",
			decision: &decision.OrchestrationDecision{
				Intent:     decision.IntentModify,
				Horizon:    decision.HorizonDay,
				Confidence: 0.9,
				Action:     decision.ActionCallTool,
				ToolName:   "modify",
			},
			day: &modification.RawDay{
				Date: tomorrow,
			},
		},
	}
}
