package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type DedupResult struct {
	IsDuplicate    bool
	ExistingLeadID string
	// HashKey is always set so the caller can insert with it on a miss.
	HashKey string
}

// Deduplicator detects leads that already exist for the same person/company
// pair within one workspace and ownership scope.
type Deduplicator struct {
	Leads entity.LeadRepositoryInterface
}

func NewDeduplicator(leads entity.LeadRepositoryInterface) *Deduplicator {
	return &Deduplicator{Leads: leads}
}

// Check looks up the hash key of (email, domain). The phone is accepted for
// callers that carry it but is not part of the key.
func (d *Deduplicator) Check(ctx context.Context, workspaceID string, scope entity.OwnershipScope, email, domain, phone string) (*DedupResult, error) {
	key := LeadHashKey(email, domain)
	result := &DedupResult{HashKey: key}

	existing, err := d.Leads.FindByHashKey(ctx, workspaceID, scope, key)
	if errors.Is(err, entity.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.IsDuplicate = true
	result.ExistingLeadID = existing.ID
	return result, nil
}

// LeadHashKey is hex(sha256("<email>|<domain>")) over the normalized values.
func LeadHashKey(email, domain string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email) + "|" + NormalizeDomain(domain)))
	return hex.EncodeToString(sum[:])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDomain strips scheme, "www." and any path from a company domain.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}
