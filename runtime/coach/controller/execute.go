package controller

// execute.go holds the per-turn state machine. A turn lands in one of three
// states: MISSING_SLOTS asks exactly one question and mutates nothing; READY
// executes exactly once under the turn guard; NO_EXECUTABLE_ACTION answers
// informationally. Execution routes the tool, runs prerequisite checks,
// applies the mutator, and passes the result through approval enforcement
// before reporting success.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/clarify"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/coach/router"
	"github.com/stridelabs/stride/runtime/coach/slots"
	"github.com/stridelabs/stride/runtime/coach/toolcall"
	"github.com/stridelabs/stride/runtime/plan/modify"
)

// Execute drives one conversational turn and returns the user-facing
// response. Contract violations return an error and fail the request;
// policy and user-input problems come back as response text.
func (c *Controller) Execute(ctx context.Context, req Request) (string, error) {
	if req.AthleteID == "" {
		return "", coacherrors.Contract("athlete id is required")
	}
	if req.ConversationID == "" {
		return "", coacherrors.Contract("conversation id is required")
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	ctx, span := c.tracer.Start(ctx, "coach.execute")
	defer span.End()

	od := req.Decision
	if od == nil {
		if c.classifier == nil {
			return "", coacherrors.Contract("no decision supplied and no classifier configured")
		}
		var err error
		od, err = c.classifier.Classify(ctx, req.UserInput, req.Conversation)
		if err != nil {
			c.logger.Error(ctx, "classify failed", "conversation_id", req.ConversationID, "err", err)
			return msgSomethingWentWrong, nil
		}
	}
	od.Horizon = decision.NormalizeHorizon(string(od.Horizon))
	if od.UserInput == "" {
		od.UserInput = req.UserInput
	}
	if err := od.Validate(); err != nil {
		span.RecordError(err)
		return "", err
	}

	state, err := c.states.Load(ctx, req.ConversationID)
	if err != nil {
		c.logger.Error(ctx, "load turn state", "conversation_id", req.ConversationID, "err", err)
		return msgSomethingWentWrong, nil
	}

	msg, err := c.run(ctx, req, od, state)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	state.LastMessage = msg
	if serr := c.states.Save(ctx, req.ConversationID, state); serr != nil {
		c.logger.Error(ctx, "save turn state", "conversation_id", req.ConversationID, "err", serr)
	}
	return msg, nil
}

func (c *Controller) run(ctx context.Context, req Request, od *decision.OrchestrationDecision, state *TurnState) (string, error) {
	// Session guard first: a rejected CALL_TOOL is downgraded to NO_TOOL
	// with the reason, never silently executed.
	if allowed, reason := c.sessionGuard(req.ConversationID).Check(od); !allowed {
		c.logger.Warn(ctx, "tool call rejected by session guard", "tool", od.ToolName, "reason", reason)
		c.metrics.IncCounter("coach_turns", 1, "outcome", "guard_rejected")
		return "I can't do that right now: " + reason + ".", nil
	}

	tool, checks, err := router.RouteWithSafetyCheck(c.catalog, router.Input{
		Intent:        od.Intent,
		Horizon:       od.Horizon,
		HasProposal:   state.PendingRevisionID != "",
		NeedsApproval: state.PendingRevisionID != "",
		QueryType:     od.QueryType,
	})
	if err != nil {
		return "", err
	}
	if tool == "" {
		c.metrics.IncCounter("coach_turns", 1, "outcome", "informational")
		return c.informational(od, state), nil
	}

	target := router.TargetFor(tool, od.Intent)
	scope := scopeFor(tool, od.Horizon)

	if scope != "" && c.extractor != nil && od.UserInput != "" {
		extracted, xerr := c.extractSlots(ctx, scope, od.UserInput)
		if xerr != nil {
			c.logger.Error(ctx, "attribute extraction failed", "scope", scope, "err", xerr)
			return msgSomethingWentWrong, nil
		}
		state.Slots = decision.MergeSlots(state.Slots, extracted)
	}

	required := c.requiredSlots(tool, od.Horizon)
	ready, missing := slots.ValidateRequired(required, state.Slots)
	ed := decision.ExecutionDecision{
		Orchestration: *od,
		TargetAction:  target,
		ToolName:      tool,
		RequiredSlots: required,
		FilledSlots:   state.Slots,
		MissingSlots:  missing,
		ShouldExecute: ready,
	}
	if !ready {
		return c.askClarification(ctx, target, missing, state)
	}
	if err := ed.Validate(); err != nil {
		return "", err
	}

	first, prior := c.turns.MarkExecuted(req.TurnID)
	if !first {
		c.logger.Info(ctx, "duplicate turn delivery suppressed", "turn_id", req.TurnID)
		if prior != "" {
			return prior, nil
		}
		return state.LastMessage, nil
	}
	// The call budget is charged at execution, not at admission.
	c.sessionGuard(req.ConversationID).CountCall(tool)

	c.runPrerequisites(ctx, checks, req.AthleteID, od)
	c.ensureEvaluated(ctx, target, req.AthleteID)

	msg, err := c.dispatch(ctx, req, od, tool, state)
	if err != nil {
		return "", err
	}
	c.turns.RecordResult(req.TurnID, msg)
	return msg, nil
}

// askClarification emits the single question for the highest-priority
// missing slot, or repeats the outstanding question verbatim when every
// missing slot has already been asked for.
func (c *Controller) askClarification(ctx context.Context, target decision.TargetAction, missing []string, state *TurnState) (string, error) {
	var fresh []string
	for _, m := range missing {
		if !state.awaitingContains(m) {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		if state.AwaitingQuestion != "" {
			return state.AwaitingQuestion, nil
		}
		fresh = missing
	}
	q, err := clarify.Generate(target, fresh)
	if err != nil {
		return "", err
	}
	asked := clarify.Slot(fresh)
	if !state.awaitingContains(asked) {
		state.Awaiting = append(state.Awaiting, asked)
	}
	state.AwaitingQuestion = q
	c.metrics.IncCounter("coach_turns", 1, "outcome", "clarification")
	c.logger.Info(ctx, "asking clarification", "slot", asked, "missing", len(missing))
	return q, nil
}

// runPrerequisites executes the declared prerequisite checks through the
// tool backend. The checks are advisory context for the mutation: failures
// are logged, never fatal.
func (c *Controller) runPrerequisites(ctx context.Context, checks []string, athleteID string, od *decision.OrchestrationDecision) {
	for _, check := range checks {
		res, err := c.backend.CallTool(ctx, check, map[string]any{
			"athlete_id": athleteID,
			"horizon":    string(od.Horizon),
		})
		if err != nil {
			c.logger.Warn(ctx, "prerequisite check failed", "check", check, "err", err)
			continue
		}
		if coherent, ok := res["coherent"].(bool); ok && !coherent {
			c.logger.Warn(ctx, "prerequisite check flagged incoherence", "check", check, "reason", res["reason"])
		}
	}
}

// ensureEvaluated enforces evaluation-before-mutation for propose and
// adjust targets: a recent evaluation is accepted, otherwise one runs
// synchronously. The evaluation is advisory, so failures log and the
// mutation proceeds.
func (c *Controller) ensureEvaluated(ctx context.Context, target decision.TargetAction, athleteID string) {
	if c.evaluator == nil {
		return
	}
	if target != decision.TargetPropose && target != decision.TargetAdjust {
		return
	}
	last, ok, err := c.evaluator.LastEvaluation(ctx, athleteID)
	if err == nil && ok && c.clock().Sub(last) <= EvalRecencyWindow {
		return
	}
	if err != nil {
		c.logger.Warn(ctx, "evaluation lookup failed", "athlete_id", athleteID, "err", err)
	}
	if err := c.evaluator.Evaluate(ctx, athleteID); err != nil {
		c.logger.Warn(ctx, "pre-mutation evaluation failed", "athlete_id", athleteID, "err", err)
	}
}

// dispatch runs the routed tool. Internal mutators handle modify and
// confirm; everything else goes through the tool backend.
func (c *Controller) dispatch(ctx context.Context, req Request, od *decision.OrchestrationDecision, tool string, state *TurnState) (string, error) {
	switch tool {
	case catalog.ToolModify:
		return c.runModify(ctx, req.AthleteID, od, state)
	case catalog.ToolConfirm:
		return c.runConfirm(ctx, req.AthleteID, state)
	default:
		return c.runBackendTool(ctx, req.AthleteID, od, tool, state)
	}
}

// runModify builds the scope's modification from the accumulated slots and
// applies it through the mutator.
func (c *Controller) runModify(ctx context.Context, athleteID string, od *decision.OrchestrationDecision, state *TurnState) (string, error) {
	var (
		res *modify.Result
		err error
	)
	switch od.Horizon {
	case decision.HorizonDay:
		res, err = c.modifyDay(ctx, athleteID, od.UserInput, state)
	case decision.HorizonWeek:
		res, err = c.modifyWeek(ctx, athleteID, od.UserInput, state)
	case decision.HorizonSeason:
		res, err = c.modifySeason(ctx, athleteID, od.UserInput, state)
	case decision.HorizonRace:
		res, err = c.modifyRace(ctx, athleteID, od.UserInput, state)
	default:
		return "", coacherrors.Contractf("modify routed with horizon %q", od.Horizon)
	}
	return c.finishMutation(ctx, res, err, state)
}

// finishMutation translates a mutator outcome into response text, running
// the result through approval enforcement first.
func (c *Controller) finishMutation(ctx context.Context, res *modify.Result, err error, state *TurnState) (string, error) {
	if err != nil {
		var perr *coacherrors.PolicyError
		if errors.As(err, &perr) {
			c.metrics.IncCounter("coach_turns", 1, "outcome", "blocked")
			state.clearAction()
			return perr.Message, nil
		}
		if coacherrors.IsContract(err) {
			return "", err
		}
		c.logger.Error(ctx, "mutation failed", "err", err)
		c.metrics.IncCounter("coach_turns", 1, "outcome", "error")
		return msgSomethingWentWrong, nil
	}
	if res == nil {
		return "", coacherrors.Contract("mutator returned no result and no error")
	}
	approved, msg, err := c.enforceApproval(ctx, res, state)
	if err != nil {
		return "", err
	}
	if !approved {
		c.metrics.IncCounter("coach_turns", 1, "outcome", "pending_approval")
		state.clearAction()
		return msg, nil
	}
	if !res.Success {
		c.metrics.IncCounter("coach_turns", 1, "outcome", "rejected")
		state.clearAction()
		return res.Error, nil
	}
	c.metrics.IncCounter("coach_turns", 1, "outcome", "applied")
	state.clearAction()
	return res.Message, nil
}

// enforceApproval verifies that a result claiming requires_approval is
// backed by a persisted, user-approved revision before it may count as
// applied. A requires_approval result without a revision id is a defect.
func (c *Controller) enforceApproval(ctx context.Context, res *modify.Result, state *TurnState) (approved bool, msg string, err error) {
	if !res.RequiresApproval {
		return true, "", nil
	}
	if res.RevisionID == "" {
		return false, "", coacherrors.Contract("requires_approval result without a revision id")
	}
	rev, err := c.store.GetRevision(ctx, res.RevisionID)
	if err != nil {
		return false, "", fmt.Errorf("load revision %s for approval check: %w", res.RevisionID, err)
	}
	if rev.ApprovedByUser && rev.Status == "applied" {
		return true, "", nil
	}
	state.PendingRevisionID = res.RevisionID
	reason := rev.Reason
	if reason == "" {
		reason = "This change needs your confirmation before I apply it."
	}
	return false, reason + " Reply \"confirm\" to apply it.", nil
}

// runConfirm approves the pending revision and applies its staged changes.
func (c *Controller) runConfirm(ctx context.Context, athleteID string, state *TurnState) (string, error) {
	if state.PendingRevisionID == "" {
		return "There is nothing waiting for your confirmation.", nil
	}
	revID := state.PendingRevisionID
	if _, err := c.store.ApproveRevision(ctx, revID, athleteID); err != nil {
		c.logger.Error(ctx, "approve revision", "revision_id", revID, "err", err)
		return msgSomethingWentWrong, nil
	}
	res, err := c.modifier.ApplyApproved(ctx, athleteID, revID)
	if err != nil {
		if coacherrors.IsContract(err) {
			return "", err
		}
		c.logger.Error(ctx, "apply approved revision", "revision_id", revID, "err", err)
		return msgSomethingWentWrong, nil
	}
	state.PendingRevisionID = ""
	state.clearAction()
	c.metrics.IncCounter("coach_turns", 1, "outcome", "confirmed")
	return res.Message, nil
}

// runBackendTool executes a tool outside the core mutators through the
// tool backend.
func (c *Controller) runBackendTool(ctx context.Context, athleteID string, od *decision.OrchestrationDecision, tool string, state *TurnState) (string, error) {
	args := map[string]any{
		"athlete_id": athleteID,
		"horizon":    string(od.Horizon),
	}
	for k, v := range state.Slots {
		args[k] = v
	}
	payload, err := catalog.MarshalArgs(args)
	if err != nil {
		return "", err
	}
	if err := c.catalog.ValidateArgs(tool, payload); err != nil {
		return "", coacherrors.ContractWithCause(fmt.Sprintf("arguments for tool %q failed schema validation", tool), err)
	}
	res, err := c.backend.CallTool(ctx, tool, args)
	if err != nil {
		if toolcall.IsTransport(err) {
			c.logger.Error(ctx, "tool transport failure", "tool", tool, "err", err)
			return msgSomethingWentWrong, nil
		}
		c.logger.Error(ctx, "tool failed", "tool", tool, "err", err)
		return msgSomethingWentWrong, nil
	}
	state.clearAction()
	c.metrics.IncCounter("coach_turns", 1, "outcome", "tool_ok", "tool", tool)
	if summary, ok := res["summary"].(string); ok && summary != "" {
		return summary, nil
	}
	if message, ok := res["message"].(string); ok && message != "" {
		return message, nil
	}
	return "Done.", nil
}

// informational answers turns that route to no tool. No side effects.
func (c *Controller) informational(od *decision.OrchestrationDecision, state *TurnState) string {
	switch od.Intent {
	case decision.IntentGreet:
		return "Hi, I'm your training coach. Ask about your schedule or tell me what you'd like to change."
	case decision.IntentOffTopic:
		return "I can only help with your training plan."
	case decision.IntentClarify:
		if state.AwaitingQuestion != "" {
			return state.AwaitingQuestion
		}
		return "Could you tell me more about what you'd like to do with your plan?"
	case decision.IntentConfirm:
		return "There is nothing waiting for your confirmation."
	default:
		if od.Reason != "" {
			return od.Reason
		}
		return "I can review your schedule or adjust your plan. Tell me what you need."
	}
}
