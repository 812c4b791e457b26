// Package mongo hosts the MongoDB client used by the plan store.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

const (
	defaultSessionsCollection  = "plan_sessions"
	defaultProfilesCollection  = "athlete_profiles"
	defaultRevisionsCollection = "plan_revisions"
	defaultOpTimeout           = 5 * time.Second
	planClientName             = "planstore-mongo"
)

// Client exposes Mongo-backed operations for plan state.
type Client interface {
	health.Pinger

	GetSessionByDate(ctx context.Context, athleteID string, date time.Time) (*plan.Session, error)
	GetSessionsInRange(ctx context.Context, athleteID string, start, end time.Time) ([]*plan.Session, error)
	SaveModified(ctx context.Context, replaced []store.Replacement) error
	InsertSessions(ctx context.Context, sessions []*plan.Session) error
	CountSessions(ctx context.Context, athleteID string) (int, error)

	GetProfile(ctx context.Context, athleteID string) (*plan.Profile, error)
	SaveProfile(ctx context.Context, profile *plan.Profile) error

	SaveRevision(ctx context.Context, athleteID string, rev revision.PlanRevision) error
	GetRevision(ctx context.Context, revisionID string) (revision.PlanRevision, error)
	ListRevisions(ctx context.Context, athleteID string) ([]revision.PlanRevision, error)
	ApproveRevision(ctx context.Context, revisionID, approvedBy string) (revision.PlanRevision, error)
}

// Options configures the Mongo plan client.
type Options struct {
	Client              *mongodriver.Client
	Database            string
	SessionsCollection  string
	ProfilesCollection  string
	RevisionsCollection string
	Timeout             time.Duration
}

type client struct {
	mongo     *mongodriver.Client
	sessions  collection
	profiles  collection
	revisions collection
	timeout   time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	sessionsCollection := opts.SessionsCollection
	if sessionsCollection == "" {
		sessionsCollection = defaultSessionsCollection
	}
	profilesCollection := opts.ProfilesCollection
	if profilesCollection == "" {
		profilesCollection = defaultProfilesCollection
	}
	revisionsCollection := opts.RevisionsCollection
	if revisionsCollection == "" {
		revisionsCollection = defaultRevisionsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	sessWrapper := mongoCollection{coll: db.Collection(sessionsCollection)}
	profWrapper := mongoCollection{coll: db.Collection(profilesCollection)}
	revWrapper := mongoCollection{coll: db.Collection(revisionsCollection)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, sessWrapper, profWrapper, revWrapper); err != nil {
		return nil, err
	}
	return newClientWithCollections(opts.Client, sessWrapper, profWrapper, revWrapper, timeout)
}

func (c *client) Name() string {
	return planClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) GetSessionByDate(ctx context.Context, athleteID string, date time.Time) (*plan.Session, error) {
	if athleteID == "" {
		return nil, errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := liveFilter(athleteID)
	filter["date"] = plan.Day(date)
	cur, err := c.sessions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var docs []sessionDocument
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, store.ErrSessionNotFound
	case 1:
		return docs[0].toSession(), nil
	default:
		return nil, store.ErrAmbiguousDate
	}
}

func (c *client) GetSessionsInRange(ctx context.Context, athleteID string, start, end time.Time) ([]*plan.Session, error) {
	if athleteID == "" {
		return nil, errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := liveFilter(athleteID)
	filter["date"] = bson.M{
		"$gte": plan.Day(start),
		"$lte": plan.Day(end),
	}
	cur, err := c.sessions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []*plan.Session
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toSession())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveModified inserts each replacement row and marks its original
// superseded by it. Originals stay stored and queryable by id.
func (c *client) SaveModified(ctx context.Context, replaced []store.Replacement) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	for _, r := range replaced {
		if r.Session == nil {
			return errors.New("replacement session is required")
		}
		if _, err := c.sessions.InsertOne(ctx, fromSession(r.Session)); err != nil {
			return err
		}
		if r.OriginalID == "" {
			continue
		}
		filter := bson.M{"session_id": r.OriginalID}
		update := bson.M{"$set": bson.M{"superseded_by": r.Session.ID}}
		if _, err := c.sessions.UpdateOne(ctx, filter, update); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) InsertSessions(ctx context.Context, sessions []*plan.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	docs := make([]any, 0, len(sessions))
	for _, s := range sessions {
		docs = append(docs, fromSession(s))
	}
	_, err := c.sessions.InsertMany(ctx, docs)
	return err
}

func (c *client) CountSessions(ctx context.Context, athleteID string) (int, error) {
	if athleteID == "" {
		return 0, errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.sessions.CountDocuments(ctx, bson.M{"athlete_id": athleteID})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *client) GetProfile(ctx context.Context, athleteID string) (*plan.Profile, error) {
	if athleteID == "" {
		return nil, errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc profileDocument
	if err := c.profiles.FindOne(ctx, bson.M{"athlete_id": athleteID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrProfileNotFound
		}
		return nil, err
	}
	return doc.toProfile(), nil
}

func (c *client) SaveProfile(ctx context.Context, profile *plan.Profile) error {
	if profile == nil || profile.AthleteID == "" {
		return errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc := fromProfile(profile)
	filter := bson.M{"athlete_id": profile.AthleteID}
	update := bson.M{"$set": doc}
	_, err := c.profiles.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// SaveRevision is append-only: a revision id is written at most once and an
// existing document is never overwritten.
func (c *client) SaveRevision(ctx context.Context, athleteID string, rev revision.PlanRevision) error {
	if athleteID == "" {
		return errors.New("athlete id is required")
	}
	if rev.ID == "" {
		return errors.New("revision id is required")
	}
	payload, err := revision.Serialize(rev)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"revision_id": rev.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"revision_id":      rev.ID,
			"athlete_id":       athleteID,
			"created_at":       rev.CreatedAt.UTC(),
			"scope":            rev.Scope,
			"status":           rev.Status,
			"approved_by_user": rev.ApprovedByUser,
			"payload":          payload,
		},
	}
	_, err = c.revisions.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) GetRevision(ctx context.Context, revisionID string) (revision.PlanRevision, error) {
	if revisionID == "" {
		return revision.PlanRevision{}, errors.New("revision id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc, err := c.loadRevisionDoc(ctx, revisionID)
	if err != nil {
		return revision.PlanRevision{}, err
	}
	return revision.Deserialize(doc.Payload)
}

func (c *client) ListRevisions(ctx context.Context, athleteID string) ([]revision.PlanRevision, error) {
	if athleteID == "" {
		return nil, errors.New("athlete id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"athlete_id": athleteID}
	cur, err := c.revisions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []revision.PlanRevision
	for cur.Next(ctx) {
		var doc revisionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rev, err := revision.Deserialize(doc.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveRevision transitions a pending revision to applied and approved.
// Idempotent: approving an already-approved revision returns it unchanged.
func (c *client) ApproveRevision(ctx context.Context, revisionID, approvedBy string) (revision.PlanRevision, error) {
	if revisionID == "" {
		return revision.PlanRevision{}, errors.New("revision id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc, err := c.loadRevisionDoc(ctx, revisionID)
	if err != nil {
		return revision.PlanRevision{}, err
	}
	rev, err := revision.Deserialize(doc.Payload)
	if err != nil {
		return revision.PlanRevision{}, err
	}
	if rev.ApprovedByUser {
		return rev, nil
	}
	rev.ApprovedByUser = true
	rev.ApprovedBy = approvedBy
	rev.Status = string(revision.OutcomeApplied)
	payload, err := revision.Serialize(rev)
	if err != nil {
		return revision.PlanRevision{}, err
	}
	filter := bson.M{"revision_id": revisionID}
	update := bson.M{
		"$set": bson.M{
			"status":           rev.Status,
			"approved_by_user": true,
			"payload":          payload,
		},
	}
	if _, err := c.revisions.UpdateOne(ctx, filter, update); err != nil {
		return revision.PlanRevision{}, err
	}
	return rev, nil
}

func (c *client) loadRevisionDoc(ctx context.Context, revisionID string) (revisionDocument, error) {
	var doc revisionDocument
	if err := c.revisions.FindOne(ctx, bson.M{"revision_id": revisionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return revisionDocument{}, store.ErrRevisionNotFound
		}
		return revisionDocument{}, err
	}
	return doc, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// liveFilter matches rows that have not been superseded.
func liveFilter(athleteID string) bson.M {
	return bson.M{
		"athlete_id": athleteID,
		"$or": bson.A{
			bson.M{"superseded_by": ""},
			bson.M{"superseded_by": bson.M{"$exists": false}},
		},
	}
}

type sessionDocument struct {
	SessionID          string    `bson:"session_id"`
	AthleteID          string    `bson:"athlete_id"`
	Date               time.Time `bson:"date"`
	Intent             string    `bson:"intent"`
	DistanceMiles      *float64  `bson:"distance_miles,omitempty"`
	DurationMinutes    *int      `bson:"duration_minutes,omitempty"`
	Pace               string    `bson:"pace,omitempty"`
	PaceSecondsPerMile *int      `bson:"pace_seconds_per_mile,omitempty"`
	Note               string    `bson:"note,omitempty"`
	SupersededBy       string    `bson:"superseded_by"`
	CreatedAt          time.Time `bson:"created_at"`
}

type profileDocument struct {
	AthleteID    string         `bson:"athlete_id"`
	RaceDate     *time.Time     `bson:"race_date,omitempty"`
	RaceDistance string         `bson:"race_distance,omitempty"`
	RacePriority string         `bson:"race_priority,omitempty"`
	TaperWeeks   int            `bson:"taper_weeks"`
	SeasonStart  *time.Time     `bson:"season_start,omitempty"`
	Phases       []phaseSpanDoc `bson:"phases,omitempty"`
}

type phaseSpanDoc struct {
	Phase     string `bson:"phase"`
	StartWeek int    `bson:"start_week"`
	EndWeek   int    `bson:"end_week"`
}

type revisionDocument struct {
	RevisionID     string    `bson:"revision_id"`
	AthleteID      string    `bson:"athlete_id"`
	CreatedAt      time.Time `bson:"created_at"`
	Scope          string    `bson:"scope"`
	Status         string    `bson:"status"`
	ApprovedByUser bool      `bson:"approved_by_user"`
	Payload        []byte    `bson:"payload"`
}

func fromSession(s *plan.Session) sessionDocument {
	return sessionDocument{
		SessionID:          s.ID,
		AthleteID:          s.AthleteID,
		Date:               plan.Day(s.Date),
		Intent:             string(s.Intent),
		DistanceMiles:      cloneFloat(s.DistanceMiles),
		DurationMinutes:    cloneInt(s.DurationMinutes),
		Pace:               string(s.Pace),
		PaceSecondsPerMile: cloneInt(s.PaceSecondsPerMile),
		Note:               s.Note,
		SupersededBy:       s.SupersededBy,
		CreatedAt:          s.CreatedAt.UTC(),
	}
}

func (doc sessionDocument) toSession() *plan.Session {
	return &plan.Session{
		ID:                 doc.SessionID,
		AthleteID:          doc.AthleteID,
		Date:               plan.Day(doc.Date),
		Intent:             plan.Intent(doc.Intent),
		DistanceMiles:      cloneFloat(doc.DistanceMiles),
		DurationMinutes:    cloneInt(doc.DurationMinutes),
		Pace:               plan.PaceZone(doc.Pace),
		PaceSecondsPerMile: cloneInt(doc.PaceSecondsPerMile),
		Note:               doc.Note,
		SupersededBy:       doc.SupersededBy,
		CreatedAt:          doc.CreatedAt.UTC(),
	}
}

func fromProfile(p *plan.Profile) profileDocument {
	doc := profileDocument{
		AthleteID:    p.AthleteID,
		RaceDistance: p.RaceDistance,
		RacePriority: p.RacePriority,
		TaperWeeks:   p.TaperWeeks,
	}
	if p.RaceDate != nil {
		d := plan.Day(*p.RaceDate)
		doc.RaceDate = &d
	}
	if p.SeasonStart != nil {
		d := plan.Day(*p.SeasonStart)
		doc.SeasonStart = &d
	}
	for _, span := range p.Phases {
		doc.Phases = append(doc.Phases, phaseSpanDoc{
			Phase:     string(span.Phase),
			StartWeek: span.StartWeek,
			EndWeek:   span.EndWeek,
		})
	}
	return doc
}

func (doc profileDocument) toProfile() *plan.Profile {
	p := &plan.Profile{
		AthleteID:    doc.AthleteID,
		RaceDistance: doc.RaceDistance,
		RacePriority: doc.RacePriority,
		TaperWeeks:   doc.TaperWeeks,
	}
	if doc.RaceDate != nil {
		d := plan.Day(*doc.RaceDate)
		p.RaceDate = &d
	}
	if doc.SeasonStart != nil {
		d := plan.Day(*doc.SeasonStart)
		p.SeasonStart = &d
	}
	for _, span := range doc.Phases {
		p.Phases = append(p.Phases, plan.PhaseSpan{
			Phase:     plan.Phase(span.Phase),
			StartWeek: span.StartWeek,
			EndWeek:   span.EndWeek,
		})
	}
	return p
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ensureIndexes(ctx context.Context, sessionsColl, profilesColl, revisionsColl collection) error {
	sessionIDIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := sessionsColl.Indexes().CreateOne(ctx, sessionIDIndex); err != nil {
		return err
	}
	sessionDateIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "athlete_id", Value: 1},
			{Key: "date", Value: 1},
		},
	}
	if _, err := sessionsColl.Indexes().CreateOne(ctx, sessionDateIndex); err != nil {
		return err
	}
	profileIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "athlete_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := profilesColl.Indexes().CreateOne(ctx, profileIndex); err != nil {
		return err
	}
	revisionIDIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "revision_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := revisionsColl.Indexes().CreateOne(ctx, revisionIDIndex); err != nil {
		return err
	}
	revisionAthleteIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "athlete_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}
	if _, err := revisionsColl.Indexes().CreateOne(ctx, revisionAthleteIndex); err != nil {
		return err
	}
	return nil
}

func newClientWithCollections(mongoClient *mongodriver.Client, sessionsColl, profilesColl, revisionsColl collection, timeout time.Duration) (*client, error) {
	if sessionsColl == nil || profilesColl == nil || revisionsColl == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:     mongoClient,
		sessions:  sessionsColl,
		profiles:  profilesColl,
		revisions: revisionsColl,
		timeout:   timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	InsertOne(ctx context.Context, doc any,
		opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	InsertMany(ctx context.Context, docs []any,
		opts ...*options.InsertManyOptions) (*mongodriver.InsertManyResult, error)
	CountDocuments(ctx context.Context, filter any,
		opts ...*options.CountOptions) (int64, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc, opts...)
}

func (c mongoCollection) InsertMany(ctx context.Context, docs []any,
	opts ...*options.InsertManyOptions) (*mongodriver.InsertManyResult, error) {
	return c.coll.InsertMany(ctx, docs, opts...)
}

func (c mongoCollection) CountDocuments(ctx context.Context, filter any,
	opts ...*options.CountOptions) (int64, error) {
	return c.coll.CountDocuments(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return c.coll.Indexes()
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}
