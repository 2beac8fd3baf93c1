package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/integration/routing"
	"github.com/xavierca1/lead-pipeline/internal/infra/mail"
)

// memStore is an in-memory stand-in for the relational store. It enforces the
// same uniqueness rules as the schema so conflict paths can be exercised.
type memStore struct {
	mu          sync.Mutex
	events      map[string]*entity.RawEvent
	identities  map[string]*entity.Identity
	leads       map[string]*entity.Lead
	targeting   []*entity.UserTargeting
	assignments map[string]*entity.UserLeadAssignment
	writes      int

	// linkFailures makes the next InsertAndLink calls fail after the
	// conflict check, the way an aborted transaction would.
	linkFailures int
}

func newMemStore() *memStore {
	return &memStore{
		events:      make(map[string]*entity.RawEvent),
		identities:  make(map[string]*entity.Identity),
		leads:       make(map[string]*entity.Lead),
		assignments: make(map[string]*entity.UserLeadAssignment),
	}
}

func (s *memStore) eventRepo() *fakeEventRepo { return &fakeEventRepo{s} }
func (s *memStore) identityRepo() *fakeIdentityRepo { return &fakeIdentityRepo{s} }
func (s *memStore) leadRepo() *fakeLeadRepo { return &fakeLeadRepo{s} }
func (s *memStore) targetingRepo() *fakeTargetingRepo { return &fakeTargetingRepo{s} }
func (s *memStore) assignmentRepo() *fakeAssignmentRepo { return &fakeAssignmentRepo{s} }

func (s *memStore) identityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

func (s *memStore) leadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

func (s *memStore) assignmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assignments)
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fakeEventRepo struct{ s *memStore }

func (r *fakeEventRepo) Create(ctx context.Context, e *entity.RawEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.events[e.ID] = &cp
	r.s.writes++
	return nil
}

func (r *fakeEventRepo) FindByID(ctx context.Context, id string) (*entity.RawEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEventRepo) MarkProcessed(ctx context.Context, id string, result entity.EventResult) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok || e.Processed {
		return false, nil
	}
	now := time.Now()
	e.Processed = true
	e.OutcomeReason = result.Reason
	e.IdentityID = result.IdentityID
	e.LeadID = result.LeadID
	e.Error = ""
	e.ProcessedAt = &now
	r.s.writes++
	return true, nil
}

func (r *fakeEventRepo) RecordFailure(ctx context.Context, id string, errMsg string, attempts int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.events[id]; ok && !e.Processed {
		e.Error = errMsg
		e.Attempts = attempts
	}
	return nil
}

func (r *fakeEventRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.events[id]; ok && !e.Processed {
		e.LastEnqueuedAt = &at
		r.s.writes++
	}
	return nil
}

type fakeIdentityRepo struct{ s *memStore }

func (r *fakeIdentityRepo) findBy(ws string, match func(*entity.Identity) bool) (*entity.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.identities {
		if i.WorkspaceID == ws && match(i) {
			cp := *i
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (r *fakeIdentityRepo) FindByProfileID(ctx context.Context, ws, profileID string) (*entity.Identity, error) {
	return r.findBy(ws, func(i *entity.Identity) bool { return i.ProfileID == profileID })
}

func (r *fakeIdentityRepo) FindByUUID(ctx context.Context, ws, id string) (*entity.Identity, error) {
	return r.findBy(ws, func(i *entity.Identity) bool { return i.UUID == id })
}

func (r *fakeIdentityRepo) FindByHashedEmail(ctx context.Context, ws, hem string) (*entity.Identity, error) {
	return r.findBy(ws, func(i *entity.Identity) bool { return i.HemSHA256 == hem })
}

func (r *fakeIdentityRepo) FindByPersonalEmail(ctx context.Context, ws, email string) (*entity.Identity, error) {
	return r.findBy(ws, func(i *entity.Identity) bool { return entity.ContainsString(i.PersonalEmails, email) })
}

func (r *fakeIdentityRepo) Create(ctx context.Context, identity *entity.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if identity.ProfileID != "" {
		for _, i := range r.s.identities {
			if i.WorkspaceID == identity.WorkspaceID && i.ProfileID == identity.ProfileID {
				return entity.ErrConflict
			}
		}
	}
	cp := *identity
	r.s.identities[identity.ID] = &cp
	r.s.writes++
	return nil
}

func (r *fakeIdentityRepo) Merge(ctx context.Context, id string, f entity.Fragment) (*entity.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.identities[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	i.Merge(f, time.Now())
	r.s.writes++
	cp := *i
	return &cp, nil
}

func (r *fakeIdentityRepo) LinkLead(ctx context.Context, identityID, leadID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.identities[identityID]
	if !ok {
		return entity.ErrNotFound
	}
	i.LeadID = leadID
	r.s.writes++
	return nil
}

type fakeLeadRepo struct{ s *memStore }

func (r *fakeLeadRepo) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLeadRepo) FindByHashKey(ctx context.Context, ws string, scope entity.OwnershipScope, hashKey string) (*entity.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leads {
		if l.WorkspaceID == ws && l.OwnershipScope == scope && l.HashKey == hashKey {
			cp := *l
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (r *fakeLeadRepo) Insert(ctx context.Context, lead *entity.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leads {
		if l.WorkspaceID == lead.WorkspaceID && l.OwnershipScope == lead.OwnershipScope && l.HashKey == lead.HashKey {
			return entity.ErrConflict
		}
	}
	cp := *lead
	r.s.leads[lead.ID] = &cp
	r.s.writes++
	return nil
}

// InsertAndLink applies both writes or neither.
func (r *fakeLeadRepo) InsertAndLink(ctx context.Context, lead *entity.Lead, identityID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leads {
		if l.WorkspaceID == lead.WorkspaceID && l.OwnershipScope == lead.OwnershipScope && l.HashKey == lead.HashKey {
			return entity.ErrConflict
		}
	}
	identity, ok := r.s.identities[identityID]
	if !ok {
		return entity.ErrNotFound
	}
	if r.s.linkFailures > 0 {
		r.s.linkFailures--
		return errors.New("link identity: connection reset by peer")
	}
	cp := *lead
	r.s.leads[lead.ID] = &cp
	identity.LeadID = lead.ID
	r.s.writes += 2
	return nil
}

func (r *fakeLeadRepo) Enrich(ctx context.Context, id string, patch *entity.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return entity.ErrNotFound
	}
	l.Enrich(patch)
	r.s.writes++
	return nil
}

func (r *fakeLeadRepo) AssignIfUnset(ctx context.Context, leadID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok || l.AssignedUserID != "" {
		return false, nil
	}
	l.AssignedUserID = userID
	r.s.writes++
	return true, nil
}

type fakeTargetingRepo struct{ s *memStore }

func (r *fakeTargetingRepo) add(t *entity.UserTargeting) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.targeting = append(r.s.targeting, t)
}

func (r *fakeTargetingRepo) get(userID string) *entity.UserTargeting {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.targeting {
		if t.UserID == userID {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (r *fakeTargetingRepo) ListActive(ctx context.Context, ws string) ([]*entity.UserTargeting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.UserTargeting
	for _, t := range r.s.targeting {
		if t.WorkspaceID == ws && t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTargetingRepo) TryReserve(ctx context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.targeting {
		if t.UserID != userID {
			continue
		}
		if t.AtCapacity() {
			return false, nil
		}
		t.DailyLeadCount++
		t.WeeklyLeadCount++
		t.MonthlyLeadCount++
		r.s.writes++
		return true, nil
	}
	return false, nil
}

func (r *fakeTargetingRepo) Release(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.targeting {
		if t.UserID == userID {
			t.DailyLeadCount--
			t.WeeklyLeadCount--
			t.MonthlyLeadCount--
		}
	}
	return nil
}

func (r *fakeTargetingRepo) ResetExpiredWindows(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeAssignmentRepo struct{ s *memStore }

func (r *fakeAssignmentRepo) Create(ctx context.Context, a *entity.UserLeadAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := a.LeadID + "/" + a.UserID
	if _, ok := r.s.assignments[key]; ok {
		return entity.ErrConflict
	}
	cp := *a
	r.s.assignments[key] = &cp
	r.s.writes++
	return nil
}

type MockWorkspaceRouter struct {
	mock.Mock
}

func (m *MockWorkspaceRouter) RouteLead(ctx context.Context, input routing.RouteLeadInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewLead(ctx context.Context, summary mail.LeadSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

type MockIdentityPublisher struct {
	mock.Mock
}

func (m *MockIdentityPublisher) PublishIdentityUpdated(ctx context.Context, msg entity.IdentityUpdated) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockAudiencePublisher struct {
	mock.Mock
}

func (m *MockAudiencePublisher) PublishAudienceEvent(ctx context.Context, msg entity.AudienceEventReceived) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// pipeline wires every stage against one memStore.
type pipeline struct {
	store     *memStore
	router    *MockWorkspaceRouter
	notifier  *MockNotifier
	publisher *MockIdentityPublisher
	uc        *ProcessEventUseCase
}

func newPipeline() *pipeline {
	store := newMemStore()
	p := &pipeline{
		store:     store,
		router:    new(MockWorkspaceRouter),
		notifier:  new(MockNotifier),
		publisher: new(MockIdentityPublisher),
	}
	p.router.On("RouteLead", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.notifier.On("NotifyNewLead", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.publisher.On("PublishIdentityUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()

	logger := zap.NewNop()
	p.uc = NewProcessEventUseCase(
		store.eventRepo(),
		NewIdentityResolver(store.identityRepo()),
		NewLeadUpserter(store.leadRepo(), store.identityRepo()),
		NewLeadRouter(store.targetingRepo(), store.assignmentRepo(), store.leadRepo(), p.router, logger),
		p.notifier,
		p.publisher,
		logger,
	)
	return p
}

// ingest stores a raw event the way the ingest API does and returns the queue message for it.
func (p *pipeline) ingest(workspaceID, partnerID, payload string) entity.AudienceEventReceived {
	e := entity.NewRawEvent(workspaceID, "test", partnerID, []byte(payload))
	_ = p.store.eventRepo().Create(context.Background(), e)
	return entity.AudienceEventReceived{EventID: e.ID, WorkspaceID: workspaceID, Source: "test"}
}

func intPtr(v int) *int { return &v }
