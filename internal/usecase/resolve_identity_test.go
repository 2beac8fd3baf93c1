package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

func TestResolveCreatesIdentityOnMiss(t *testing.T) {
	store := newMemStore()
	r := NewIdentityResolver(store.identityRepo())

	res, err := r.Resolve(context.Background(), "ws-1", entity.Fragment{
		ProfileID:      "P1",
		PersonalEmails: []string{"jane@gmail.com"},
		FirstName:      "Jane",
	})

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, MatchNone, res.MatchedBy)
	assert.Equal(t, 1, res.Identity.VisitCount)
	assert.Equal(t, "ws-1", res.Identity.WorkspaceID)
	assert.Equal(t, 1, store.identityCount())
}

func TestResolveRejectsFragmentWithoutKeys(t *testing.T) {
	store := newMemStore()
	r := NewIdentityResolver(store.identityRepo())

	_, err := r.Resolve(context.Background(), "ws-1", entity.Fragment{FirstName: "Jane"})

	assert.ErrorIs(t, err, ErrNoIdentifiableInfo)
	assert.Zero(t, store.identityCount())
}

func TestResolveMergesOnMatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewIdentityResolver(store.identityRepo())

	first, err := r.Resolve(ctx, "ws-1", entity.Fragment{
		UUID:           "u-1",
		FirstName:      "Jane",
		CompanyName:    "Acme",
		PersonalEmails: []string{"jane@gmail.com"},
		Phones:         []string{"+14155550100"},
	})
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "ws-1", entity.Fragment{
		UUID:           "u-1",
		ProfileID:      "P1",
		LastName:       "Doe",
		CompanyName:    "",
		PersonalEmails: []string{"jd@yahoo.com", "jane@gmail.com"},
	})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, MatchUUID, second.MatchedBy)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)
	assert.Equal(t, "P1", second.Identity.ProfileID)
	assert.Equal(t, "Jane", second.Identity.FirstName)
	assert.Equal(t, "Doe", second.Identity.LastName)
	assert.Equal(t, "Acme", second.Identity.CompanyName)
	assert.Equal(t, []string{"jane@gmail.com", "jd@yahoo.com"}, second.Identity.PersonalEmails)
	assert.Equal(t, []string{"+14155550100"}, second.Identity.Phones)
	assert.Equal(t, 2, second.Identity.VisitCount)
	assert.Equal(t, 1, store.identityCount())
}

func TestResolvePriorityShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	repo := store.identityRepo()
	byProfile := &entity.Identity{ID: "id-profile", WorkspaceID: "ws-1", ProfileID: "P1", VisitCount: 1}
	byEmail := &entity.Identity{ID: "id-email", WorkspaceID: "ws-1", PersonalEmails: []string{"jane@gmail.com"}, VisitCount: 1}
	require.NoError(t, repo.Create(ctx, byProfile))
	require.NoError(t, repo.Create(ctx, byEmail))
	r := NewIdentityResolver(repo)

	res, err := r.Resolve(ctx, "ws-1", entity.Fragment{ProfileID: "P1", PrimaryEmail: "jane@gmail.com"})

	require.NoError(t, err)
	assert.Equal(t, "id-profile", res.Identity.ID)
	assert.Equal(t, MatchProfileID, res.MatchedBy)

	untouched, err := repo.FindByPersonalEmail(ctx, "ws-1", "jane@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, 1, untouched.VisitCount)
}

func TestResolveFallsBackToPersonalEmail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	repo := store.identityRepo()
	require.NoError(t, repo.Create(ctx, &entity.Identity{ID: "id-1", WorkspaceID: "ws-1", PersonalEmails: []string{"jane@gmail.com"}, VisitCount: 1}))
	r := NewIdentityResolver(repo)

	res, err := r.Resolve(ctx, "ws-1", entity.Fragment{UUID: "u-9", PrimaryEmail: "jane@gmail.com"})

	require.NoError(t, err)
	assert.Equal(t, "id-1", res.Identity.ID)
	assert.Equal(t, MatchPersonalEmail, res.MatchedBy)
	assert.Equal(t, "u-9", res.Identity.UUID)
}

func TestResolveIsWorkspaceScoped(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewIdentityResolver(store.identityRepo())

	a, err := r.Resolve(ctx, "ws-1", entity.Fragment{ProfileID: "P1"})
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "ws-2", entity.Fragment{ProfileID: "P1"})
	require.NoError(t, err)

	assert.NotEqual(t, a.Identity.ID, b.Identity.ID)
	assert.True(t, b.Created)
}

// racingIdentityRepo inserts a competing row right before the resolver's own insert.
type racingIdentityRepo struct {
	*fakeIdentityRepo
	raced bool
}

func (r *racingIdentityRepo) Create(ctx context.Context, identity *entity.Identity) error {
	if !r.raced {
		r.raced = true
		winner := *identity
		winner.ID = "winner"
		if err := r.fakeIdentityRepo.Create(ctx, &winner); err != nil {
			return err
		}
	}
	return r.fakeIdentityRepo.Create(ctx, identity)
}

func TestResolveMergesIntoConcurrentInsert(t *testing.T) {
	store := newMemStore()
	r := NewIdentityResolver(&racingIdentityRepo{fakeIdentityRepo: store.identityRepo()})

	res, err := r.Resolve(context.Background(), "ws-1", entity.Fragment{ProfileID: "P1", FirstName: "Jane"})

	require.NoError(t, err)
	assert.Equal(t, "winner", res.Identity.ID)
	assert.Equal(t, 2, res.Identity.VisitCount)
	assert.Equal(t, 1, store.identityCount())
}

type failingIdentityRepo struct {
	*fakeIdentityRepo
}

func (r *failingIdentityRepo) FindByProfileID(ctx context.Context, ws, profileID string) (*entity.Identity, error) {
	return nil, errors.New("connection reset")
}

func TestResolvePropagatesStorageErrors(t *testing.T) {
	store := newMemStore()
	r := NewIdentityResolver(&failingIdentityRepo{store.identityRepo()})

	_, err := r.Resolve(context.Background(), "ws-1", entity.Fragment{ProfileID: "P1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, store.identityCount())
}
