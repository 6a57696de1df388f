package backup

import (
	"context"
	"fmt"
	"time"

	apperrors "hospital-backup/internal/errors"
)

// ChainEntry is one backup needed to rebuild the target state
type ChainEntry struct {
	Backup   *BackupMetadata `json:"backup"`
	Required bool            `json:"required"`
	Current  bool            `json:"current"`
}

// Chain is the ordered list of backups to restore, oldest first
type Chain struct {
	Target       *BackupMetadata `json:"-"`
	Entries      []ChainEntry    `json:"chain"`
	Instructions []string        `json:"restore_instructions"`
}

// Length returns the number of backups in the chain
func (c *Chain) Length() int {
	return len(c.Entries)
}

// ChainResolver reconstructs the prerequisites of incremental and differential backups
type ChainResolver struct {
	repo Repository
}

// NewChainResolver creates a resolver reading from repo
func NewChainResolver(repo Repository) *ChainResolver {
	return &ChainResolver{repo: repo}
}

// Resolve returns [target] for COMPLETE and SNAPSHOT backups. DIFFERENTIAL backups need the
// latest successful COMPLETE before them; INCREMENTAL backups additionally need every
// successful backup in between. A missing root is a broken_chain error.
func (r *ChainResolver) Resolve(ctx context.Context, target *BackupMetadata) (*Chain, error) {
	if target == nil {
		return nil, apperrors.NewValidationError("target backup is required", nil)
	}

	chain := &Chain{Target: target}

	switch target.Type {
	case BackupTypeIncremental, BackupTypeDifferential:
	default:
		chain.Entries = []ChainEntry{{Backup: target, Required: true, Current: true}}
		chain.Instructions = instructions(chain.Entries)
		return chain, nil
	}

	history, err := r.repo.ListByTenant(ctx, target.TenantID)
	if err != nil {
		return nil, err
	}

	var root *BackupMetadata
	for _, b := range history {
		if b.ID == target.ID || b.Type != BackupTypeComplete || !b.Status.IsSuccessful() {
			continue
		}
		if !b.StartedAt.Before(target.StartedAt) {
			continue
		}
		if root == nil || b.StartedAt.After(root.StartedAt) ||
			(b.StartedAt.Equal(root.StartedAt) && b.SequenceNumber > root.SequenceNumber) {
			root = b
		}
	}

	if root == nil {
		return nil, apperrors.NewBrokenChainError(fmt.Sprintf(
			"no successful COMPLETE backup precedes %s backup %s for tenant %s",
			target.Type, target.BackupID, target.TenantID)).
			WithContext("backup_id", target.BackupID)
	}

	chain.Entries = append(chain.Entries, ChainEntry{Backup: root, Required: true})

	if target.Type == BackupTypeIncremental {
		for _, b := range history {
			if b.ID == target.ID || b.ID == root.ID || !b.Status.IsSuccessful() {
				continue
			}
			if b.StartedAt.After(root.StartedAt) && b.StartedAt.Before(target.StartedAt) {
				chain.Entries = append(chain.Entries, ChainEntry{Backup: b, Required: true})
			}
		}
	}

	chain.Entries = append(chain.Entries, ChainEntry{Backup: target, Required: true, Current: true})
	chain.Instructions = instructions(chain.Entries)
	return chain, nil
}

func instructions(entries []ChainEntry) []string {
	steps := make([]string, 0, len(entries)+1)
	for i, e := range entries {
		label := "prerequisite"
		if e.Current {
			label = "target"
		}
		steps = append(steps, fmt.Sprintf("%d. Restore %s backup %s (%s, started %s)",
			i+1, e.Backup.Type, e.Backup.Reference(), label, e.Backup.StartedAt.UTC().Format(time.RFC3339)))
	}
	if len(entries) > 1 {
		steps = append(steps, "Restore each backup in the order listed; a restore applies a single dump and does not walk the chain.")
	}
	return steps
}
