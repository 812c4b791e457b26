// Package store defines the persistence contract for planned sessions,
// athlete profiles, and plan revisions. Implementations must be append-only
// for sessions and revisions: a modification persists new rows and marks the
// superseded ones, it never deletes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/revision"
)

// ErrSessionNotFound is returned when no live session exists for the query.
var ErrSessionNotFound = errors.New("session not found")

// ErrAmbiguousDate is returned by the single-day lookup when more than one
// live session exists for the athlete on that date. The single-day mutation
// path must never guess which one the user meant.
var ErrAmbiguousDate = errors.New("multiple sessions on date")

// ErrRevisionNotFound is returned when no revision exists with the given id.
var ErrRevisionNotFound = errors.New("revision not found")

// ErrProfileNotFound is returned when the athlete has no stored profile.
var ErrProfileNotFound = errors.New("athlete profile not found")

// Store persists plan state. Implementations must be durable and surface
// failures to callers; the mutators translate them at their boundary.
type Store interface {
	// GetByDate returns the single live session for the athlete on the
	// given date. Returns ErrSessionNotFound when none exists and
	// ErrAmbiguousDate when more than one does.
	GetByDate(ctx context.Context, athleteID string, date time.Time) (*plan.Session, error)

	// GetInRange returns the live sessions for the athlete with dates in
	// [start, end], ordered by date ascending. Superseded rows are excluded.
	GetInRange(ctx context.Context, athleteID string, start, end time.Time) ([]*plan.Session, error)

	// SaveModified persists the outcome of one mutator invocation
	// transactionally: each replacement is inserted as a new row and its
	// original is marked superseded. Originals stay queryable by ID; the
	// live views above return only the replacements.
	SaveModified(ctx context.Context, replaced []Replacement) error

	// InsertSessions appends brand-new sessions (plan creation).
	InsertSessions(ctx context.Context, sessions []*plan.Session) error

	// CountSessions returns the total number of rows (live and superseded)
	// stored for the athlete. Audit tooling uses this to verify mutations
	// are non-destructive.
	CountSessions(ctx context.Context, athleteID string) (int, error)

	// GetProfile returns the athlete's profile, or ErrProfileNotFound.
	GetProfile(ctx context.Context, athleteID string) (*plan.Profile, error)

	// SaveProfile inserts or updates the athlete's profile.
	SaveProfile(ctx context.Context, profile *plan.Profile) error

	// SaveRevision appends a finalized revision. Append-only: a revision id
	// is written at most once.
	SaveRevision(ctx context.Context, athleteID string, rev revision.PlanRevision) error

	// GetRevision returns a stored revision, or ErrRevisionNotFound.
	GetRevision(ctx context.Context, revisionID string) (revision.PlanRevision, error)

	// ListRevisions returns the athlete's revisions, newest first.
	ListRevisions(ctx context.Context, athleteID string) ([]revision.PlanRevision, error)

	// ApproveRevision marks a pending revision as applied and approved by
	// the named user. Idempotent for already-approved revisions.
	ApproveRevision(ctx context.Context, revisionID, approvedBy string) (revision.PlanRevision, error)
}

// Replacement pairs an original session with the row that supersedes it.
// OriginalID is empty when the replacement is a net-new row (e.g. a session
// moved onto a previously empty date).
type Replacement struct {
	OriginalID string
	Session    *plan.Session
}
