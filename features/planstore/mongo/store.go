// Package mongo provides the MongoDB-backed plan store.
package mongo

import (
	"context"
	"errors"
	"time"

	clientsmongo "github.com/stridelabs/stride/features/planstore/mongo/clients/mongo"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

// Store implements store.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

var _ store.Store = (*Store)(nil)

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// GetByDate returns the single live session on the date.
func (s *Store) GetByDate(ctx context.Context, athleteID string, date time.Time) (*plan.Session, error) {
	return s.client.GetSessionByDate(ctx, athleteID, date)
}

// GetInRange returns the live sessions in [start, end], date ascending.
func (s *Store) GetInRange(ctx context.Context, athleteID string, start, end time.Time) ([]*plan.Session, error) {
	return s.client.GetSessionsInRange(ctx, athleteID, start, end)
}

// SaveModified persists replacement rows and marks their originals
// superseded.
func (s *Store) SaveModified(ctx context.Context, replaced []store.Replacement) error {
	return s.client.SaveModified(ctx, replaced)
}

// InsertSessions appends brand-new session rows.
func (s *Store) InsertSessions(ctx context.Context, sessions []*plan.Session) error {
	return s.client.InsertSessions(ctx, sessions)
}

// CountSessions returns the total stored row count for the athlete.
func (s *Store) CountSessions(ctx context.Context, athleteID string) (int, error) {
	return s.client.CountSessions(ctx, athleteID)
}

// GetProfile returns the athlete's profile.
func (s *Store) GetProfile(ctx context.Context, athleteID string) (*plan.Profile, error) {
	return s.client.GetProfile(ctx, athleteID)
}

// SaveProfile inserts or updates the athlete's profile.
func (s *Store) SaveProfile(ctx context.Context, profile *plan.Profile) error {
	return s.client.SaveProfile(ctx, profile)
}

// SaveRevision appends a finalized revision.
func (s *Store) SaveRevision(ctx context.Context, athleteID string, rev revision.PlanRevision) error {
	return s.client.SaveRevision(ctx, athleteID, rev)
}

// GetRevision returns a stored revision.
func (s *Store) GetRevision(ctx context.Context, revisionID string) (revision.PlanRevision, error) {
	return s.client.GetRevision(ctx, revisionID)
}

// ListRevisions returns the athlete's revisions, newest first.
func (s *Store) ListRevisions(ctx context.Context, athleteID string) ([]revision.PlanRevision, error) {
	return s.client.ListRevisions(ctx, athleteID)
}

// ApproveRevision marks a pending revision as applied and user-approved.
func (s *Store) ApproveRevision(ctx context.Context, revisionID, approvedBy string) (revision.PlanRevision, error) {
	return s.client.ApproveRevision(ctx, revisionID, approvedBy)
}
