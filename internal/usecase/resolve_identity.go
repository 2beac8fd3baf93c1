package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type MatchKey string

const (
	MatchProfileID     MatchKey = "profile_id"
	MatchUUID          MatchKey = "uuid"
	MatchHashedEmail   MatchKey = "hem_sha256"
	MatchPersonalEmail MatchKey = "personal_email"
	MatchNone          MatchKey = ""
)

var ErrNoIdentifiableInfo = errors.New("fragment carries no identifying key")

type ResolveResult struct {
	Identity  *entity.Identity
	Created   bool
	MatchedBy MatchKey
}

type identityMatcher struct {
	key   MatchKey
	value func(entity.Fragment) string
	find  func(ctx context.Context, repo entity.IdentityRepositoryInterface, workspaceID, value string) (*entity.Identity, error)
}

// Lookup order is the resolver's contract: the first key that matches wins and
// later keys are never consulted.
var identityMatchers = []identityMatcher{
	{
		key:   MatchProfileID,
		value: func(f entity.Fragment) string { return f.ProfileID },
		find: func(ctx context.Context, repo entity.IdentityRepositoryInterface, ws, v string) (*entity.Identity, error) {
			return repo.FindByProfileID(ctx, ws, v)
		},
	},
	{
		key:   MatchUUID,
		value: func(f entity.Fragment) string { return f.UUID },
		find: func(ctx context.Context, repo entity.IdentityRepositoryInterface, ws, v string) (*entity.Identity, error) {
			return repo.FindByUUID(ctx, ws, v)
		},
	},
	{
		key:   MatchHashedEmail,
		value: func(f entity.Fragment) string { return f.HemSHA256 },
		find: func(ctx context.Context, repo entity.IdentityRepositoryInterface, ws, v string) (*entity.Identity, error) {
			return repo.FindByHashedEmail(ctx, ws, v)
		},
	},
	{
		key:   MatchPersonalEmail,
		value: func(f entity.Fragment) string { return f.PrimaryEmail },
		find: func(ctx context.Context, repo entity.IdentityRepositoryInterface, ws, v string) (*entity.Identity, error) {
			return repo.FindByPersonalEmail(ctx, ws, v)
		},
	},
}

type IdentityResolver struct {
	Repo entity.IdentityRepositoryInterface
	Now  func() time.Time
}

func NewIdentityResolver(repo entity.IdentityRepositoryInterface) *IdentityResolver {
	return &IdentityResolver{Repo: repo, Now: time.Now}
}

// Resolve finds the identity for the fragment and merges into it, or inserts a
// new one scoped to the workspace. The merge is a single statement, so a
// failed call leaves nothing half-written.
func (r *IdentityResolver) Resolve(ctx context.Context, workspaceID string, f entity.Fragment) (*ResolveResult, error) {
	if !f.HasKey() {
		return nil, ErrNoIdentifiableInfo
	}

	result, err := r.mergeExisting(ctx, workspaceID, f)
	if err != nil || result != nil {
		return result, err
	}

	identity := entity.NewIdentity(workspaceID, f, r.Now())
	err = r.Repo.Create(ctx, identity)
	if err == nil {
		return &ResolveResult{Identity: identity, Created: true}, nil
	}
	if !errors.Is(err, entity.ErrConflict) {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	// A concurrent delivery inserted the same person first; merge into its row.
	result, err = r.mergeExisting(ctx, workspaceID, f)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("identity conflict without a matching row for workspace %s", workspaceID)
	}
	return result, nil
}

func (r *IdentityResolver) mergeExisting(ctx context.Context, workspaceID string, f entity.Fragment) (*ResolveResult, error) {
	existing, key, err := r.lookup(ctx, workspaceID, f)
	if err != nil || existing == nil {
		return nil, err
	}
	merged, err := r.Repo.Merge(ctx, existing.ID, f)
	if err != nil {
		return nil, fmt.Errorf("merge identity %s: %w", existing.ID, err)
	}
	return &ResolveResult{Identity: merged, MatchedBy: key}, nil
}

func (r *IdentityResolver) lookup(ctx context.Context, workspaceID string, f entity.Fragment) (*entity.Identity, MatchKey, error) {
	for _, m := range identityMatchers {
		v := m.value(f)
		if v == "" {
			continue
		}
		identity, err := m.find(ctx, r.Repo, workspaceID, v)
		if errors.Is(err, entity.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, MatchNone, fmt.Errorf("find identity by %s: %w", m.key, err)
		}
		return identity, m.key, nil
	}
	return nil, MatchNone, nil
}
