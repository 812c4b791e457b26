// Package clarify produces the single follow-up question asked when a
// mutating action is missing required attributes. While an executable action
// is pending the controller gathers information, nothing else: every
// generated message holds exactly one question, stays under two sentences,
// and contains no coaching advice. The validators that enforce those
// constraints live here so tests and the controller share them.
package clarify

import (
	"strings"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

// Precedence is the fixed slot ordering: when several slots are missing the
// earliest one here is asked about first.
var Precedence = []string{
	"race_date",
	"date",
	"start_date",
	"end_date",
	"distance",
	"change_type",
	"amount",
}

// questions maps slot names to their single-question prompts.
var questions = map[string]string{
	"race_date":   "What date is your race?",
	"date":        "Which date should I change?",
	"start_date":  "What date does the week you want to change start on?",
	"end_date":    "What date does that week end on?",
	"distance":    "What distance are we working with?",
	"change_type": "What would you like to change about that session?",
	"amount":      "How much should it change by?",
}

// questionsByTarget overrides prompts where the target action changes the
// natural phrasing.
var questionsByTarget = map[decision.TargetAction]map[string]string{
	decision.TargetPropose: {
		"distance": "What distance is the race you are training for?",
	},
}

// bannedPhrases is the advice vocabulary that must never appear while the
// controller is gathering information.
var bannedPhrases = []string{
	"you should",
	"here are some tips",
	"i recommend",
	"my advice",
	"a good rule of thumb",
	"make sure to",
}

// Generate returns the single clarification for the highest-priority
// missing slot. The missing list must be non-empty.
func Generate(target decision.TargetAction, missing []string) (string, error) {
	if len(missing) == 0 {
		return "", coacherrors.Contract("clarification requested with no missing slots")
	}
	slot := Slot(missing)
	q := ""
	if byTarget, ok := questionsByTarget[target]; ok {
		q = byTarget[slot]
	}
	if q == "" {
		q = questions[slot]
	}
	if q == "" {
		q = "Could you share the " + strings.ReplaceAll(slot, "_", " ") + "?"
	}
	if err := Validate(q); err != nil {
		return "", err
	}
	return q, nil
}

// Slot returns the missing slot with the highest precedence, falling back
// to the first listed slot for names outside the precedence table.
func Slot(missing []string) string {
	for _, p := range Precedence {
		for _, m := range missing {
			if m == p {
				return m
			}
		}
	}
	return missing[0]
}

// Validate enforces the clarification constraints: exactly one question
// mark, no paragraph breaks, at most two sentences, and none of the banned
// advice vocabulary.
func Validate(msg string) error {
	if strings.Count(msg, "?") != 1 {
		return coacherrors.Contractf("clarification must contain exactly one question mark: %q", msg)
	}
	if strings.Contains(msg, "\n\n") {
		return coacherrors.Contractf("clarification must not contain paragraph breaks: %q", msg)
	}
	if n := sentenceCount(msg); n > 2 {
		return coacherrors.Contractf("clarification has %d sentences, maximum is 2: %q", n, msg)
	}
	lower := strings.ToLower(msg)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return coacherrors.Contractf("clarification contains advice phrase %q: %q", phrase, msg)
		}
	}
	return nil
}

func sentenceCount(msg string) int {
	n := 0
	for _, r := range msg {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	if n == 0 && strings.TrimSpace(msg) != "" {
		n = 1
	}
	return n
}
