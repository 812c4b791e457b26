// Package controller implements the top-level execution controller: one
// entry point per conversational turn that composes the router, the slot
// gate, the execution guards, the mutators, and the revision ledger into the
// decision-and-safety state machine. It is the only layer that converts
// errors into user-facing text; everything below it raises typed errors.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/coach/extract"
	"github.com/stridelabs/stride/runtime/coach/guard"
	"github.com/stridelabs/stride/runtime/coach/slots"
	"github.com/stridelabs/stride/runtime/coach/telemetry"
	"github.com/stridelabs/stride/runtime/coach/toolcall"
	"github.com/stridelabs/stride/runtime/plan/modify"
	"github.com/stridelabs/stride/runtime/plan/store"
)

type (
	// Controller drives one conversational turn end to end.
	Controller struct {
		classifier extract.Classifier
		extractor  extract.Extractor
		backend    toolcall.Backend
		modifier   *modify.Modifier
		store      store.Store
		catalog    *catalog.Catalog
		gate       *slots.Gate
		evaluator  Evaluator
		states     TurnStateStore
		turns      *guard.TurnGuard
		logger     telemetry.Logger
		metrics    telemetry.Metrics
		tracer     telemetry.Tracer
		clock      func() time.Time

		mu     sync.Mutex
		guards map[string]*guard.ToolGuard
	}

	// Options configures a Controller.
	Options struct {
		// Classifier turns raw user input into orchestration decisions.
		// Optional: callers may classify upstream and pass the decision in.
		Classifier extract.Classifier
		// Extractor pulls modification attributes from user messages.
		// Required for any mutating tool to gather slots.
		Extractor extract.Extractor
		// Backend executes tools outside the core mutators. Required.
		Backend toolcall.Backend
		// Modifier applies plan mutations. Required.
		Modifier *modify.Modifier
		// Store is the plan persistence layer. Required.
		Store store.Store
		// Catalog declares the available tools. Defaults to catalog.Default.
		Catalog *catalog.Catalog
		// Evaluator provides the advisory pre-mutation evaluation. Optional.
		Evaluator Evaluator
		// States persists per-conversation turn state. Defaults to the
		// in-memory store.
		States TurnStateStore
		// Logger defaults to a noop logger.
		Logger telemetry.Logger
		// Metrics defaults to a noop recorder.
		Metrics telemetry.Metrics
		// Tracer defaults to a noop tracer.
		Tracer telemetry.Tracer
		// Clock defaults to time.Now. Tests override it.
		Clock func() time.Time
	}

	// Evaluator runs the advisory plan evaluation consulted before propose
	// and adjust actions. Failures are logged, never fatal.
	Evaluator interface {
		// LastEvaluation returns when the athlete's plan was last
		// evaluated, and false if it never was.
		LastEvaluation(ctx context.Context, athleteID string) (time.Time, bool, error)
		// Evaluate runs a synchronous evaluation.
		Evaluate(ctx context.Context, athleteID string) error
	}

	// Request carries one turn of user input into Execute.
	Request struct {
		// AthleteID identifies whose plan the turn concerns. Required.
		AthleteID string
		// ConversationID scopes turn state and session guards. Required.
		ConversationID string
		// TurnID identifies this delivery for at-most-once execution.
		// Defaults to a fresh ID, which disables duplicate suppression.
		TurnID string
		// UserInput is the verbatim user message.
		UserInput string
		// Decision is the pre-classified decision for this turn. When nil
		// the controller's classifier is invoked.
		Decision *decision.OrchestrationDecision
		// Conversation is prior context handed to the classifier.
		Conversation []extract.Message
	}
)

// EvalRecencyWindow is how fresh an evaluation must be to skip re-running
// it before a propose or adjust action.
const EvalRecencyWindow = 10 * time.Minute

// msgSomethingWentWrong is the only text transient failures ever surface.
const msgSomethingWentWrong = "Something went wrong on my end. Please try again."

// New constructs a Controller using the supplied options.
func New(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Modifier == nil {
		return nil, errors.New("modifier is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	c := &Controller{
		classifier: opts.Classifier,
		extractor:  opts.Extractor,
		backend:    opts.Backend,
		modifier:   opts.Modifier,
		store:      opts.Store,
		catalog:    opts.Catalog,
		evaluator:  opts.Evaluator,
		states:     opts.States,
		turns:      guard.NewTurnGuard(),
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		clock:      opts.Clock,
		guards:     make(map[string]*guard.ToolGuard),
	}
	if c.catalog == nil {
		c.catalog = catalog.Default()
	}
	if c.states == nil {
		c.states = NewInMemStateStore()
	}
	if c.logger == nil {
		c.logger = telemetry.NewNoopLogger()
	}
	if c.metrics == nil {
		c.metrics = telemetry.NewNoopMetrics()
	}
	if c.tracer == nil {
		c.tracer = telemetry.NewNoopTracer()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	g, err := slots.NewGate(c.catalog)
	if err != nil {
		return nil, err
	}
	c.gate = g
	return c, nil
}

// sessionGuard returns the conversation's tool guard, creating it from the
// catalog on first use.
func (c *Controller) sessionGuard(conversationID string) *guard.ToolGuard {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[conversationID]
	if !ok {
		g = guard.NewToolGuard(c.catalog)
		c.guards[conversationID] = g
	}
	return g
}
