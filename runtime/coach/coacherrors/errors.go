// Package coacherrors defines the two error kinds the execution core
// distinguishes: policy errors, which describe a request the system refuses
// for domain-safety reasons and which are safe to show to users, and contract
// errors, which indicate an upstream logic bug and must fail the request
// loudly. Both preserve causal chains and support errors.Is/As.
package coacherrors

import (
	"errors"
	"fmt"
)

// PolicyError reports a refusal grounded in domain rules: race-day
// protections, taper windows, volume bounds, missing or out-of-range user
// input. Policy errors are recoverable from the conversation's point of view;
// the controller converts them into a rejected-with-reason response.
type PolicyError struct {
	// Message is the human-readable reason for the refusal.
	Message string
	// Rule optionally names the safety rule that fired (e.g. "race_week_volume").
	Rule string
	// Cause links to the underlying error, if any.
	Cause error
}

// ContractError reports a broken internal invariant: should_execute with
// missing slots, an approval-required result without a revision id, an
// unknown tool reaching execution. Contract errors are developer bugs and
// must never be coerced into a user-facing apology.
type ContractError struct {
	// Message describes the violated invariant.
	Message string
	// Cause links to the underlying error, if any.
	Cause error
}

// Policy constructs a PolicyError with the provided message.
func Policy(message string) *PolicyError {
	return &PolicyError{Message: message}
}

// Policyf formats according to a format specifier and returns a PolicyError.
func Policyf(format string, args ...any) *PolicyError {
	return &PolicyError{Message: fmt.Sprintf(format, args...)}
}

// PolicyRule constructs a PolicyError tagged with the rule that fired.
func PolicyRule(rule, message string) *PolicyError {
	return &PolicyError{Message: message, Rule: rule}
}

// PolicyWithCause wraps an underlying error as a PolicyError.
func PolicyWithCause(message string, cause error) *PolicyError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &PolicyError{Message: message, Cause: cause}
}

// Contract constructs a ContractError with the provided message.
func Contract(message string) *ContractError {
	return &ContractError{Message: message}
}

// Contractf formats according to a format specifier and returns a ContractError.
func Contractf(format string, args ...any) *ContractError {
	return &ContractError{Message: fmt.Sprintf(format, args...)}
}

// ContractWithCause wraps an underlying error as a ContractError.
func ContractWithCause(message string, cause error) *ContractError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ContractError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As traversal.
func (e *PolicyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "contract violation: " + e.Message
}

// Unwrap exposes the cause for errors.Is/As traversal.
func (e *ContractError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsPolicy reports whether err is (or wraps) a PolicyError.
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// IsContract reports whether err is (or wraps) a ContractError.
func IsContract(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// PolicyReason returns the message of the policy error wrapped by err, or ""
// when err carries no policy error.
func PolicyReason(err error) string {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}
