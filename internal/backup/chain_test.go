package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
)

func seedChain(repo *MockRepository, base time.Time, seeds ...seed) []*BackupMetadata {
	out := make([]*BackupMetadata, 0, len(seeds))
	for i, s := range seeds {
		out = append(out, repo.seed(&BackupMetadata{
			TenantID:        "CHU-Nord",
			Type:            s.t,
			Status:          s.s,
			PrimaryLocation: "/backups/chain",
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
			SequenceNumber:  int64(i + 1),
		}))
	}
	return out
}

type seed struct {
	t BackupType
	s Status
}

func ids(chain *Chain) []uint {
	out := make([]uint, len(chain.Entries))
	for i, e := range chain.Entries {
		out[i] = e.Backup.ID
	}
	return out
}

func TestChainResolver_CompleteIsSingleton(t *testing.T) {
	repo := NewMockRepository()
	recs := seedChain(repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		seed{BackupTypeComplete, StatusSuccess},
		seed{BackupTypeSnapshot, StatusSuccess},
	)

	for _, rec := range recs {
		chain, err := NewChainResolver(repo).Resolve(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, []uint{rec.ID}, ids(chain))
		assert.True(t, chain.Entries[0].Current)
		assert.Len(t, chain.Instructions, 1)
	}
}

func TestChainResolver_Incremental(t *testing.T) {
	repo := NewMockRepository()
	recs := seedChain(repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		seed{BackupTypeComplete, StatusSuccess},     // 0: older root, superseded
		seed{BackupTypeComplete, StatusVerified},    // 1: root
		seed{BackupTypeIncremental, StatusSuccess},  // 2
		seed{BackupTypeIncremental, StatusFailed},   // 3: skipped
		seed{BackupTypeDifferential, StatusSuccess}, // 4
		seed{BackupTypeIncremental, StatusSuccess},  // 5: target
		seed{BackupTypeIncremental, StatusSuccess},  // 6: after target
	)

	chain, err := NewChainResolver(repo).Resolve(context.Background(), recs[5])
	require.NoError(t, err)

	assert.Equal(t, []uint{recs[1].ID, recs[2].ID, recs[4].ID, recs[5].ID}, ids(chain))

	// Verify ordering: the root is the first entry and every start time is increasing
	assert.Equal(t, BackupTypeComplete, chain.Entries[0].Backup.Type)
	for i := 1; i < len(chain.Entries); i++ {
		assert.True(t, chain.Entries[i-1].Backup.StartedAt.Before(chain.Entries[i].Backup.StartedAt))
	}
	assert.True(t, chain.Entries[len(chain.Entries)-1].Current)
	assert.Len(t, chain.Instructions, chain.Length()+1)
}

func TestChainResolver_Differential(t *testing.T) {
	repo := NewMockRepository()
	recs := seedChain(repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		seed{BackupTypeComplete, StatusRestored},
		seed{BackupTypeIncremental, StatusSuccess},
		seed{BackupTypeDifferential, StatusSuccess},
	)

	chain, err := NewChainResolver(repo).Resolve(context.Background(), recs[2])
	require.NoError(t, err)
	assert.Equal(t, []uint{recs[0].ID, recs[2].ID}, ids(chain))
}

func TestChainResolver_BrokenChain(t *testing.T) {
	repo := NewMockRepository()
	recs := seedChain(repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		seed{BackupTypeComplete, StatusFailed},
		seed{BackupTypeIncremental, StatusSuccess},
	)

	_, err := NewChainResolver(repo).Resolve(context.Background(), recs[1])
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeBrokenChain))
}

func TestChainResolver_IgnoresOtherTenants(t *testing.T) {
	repo := NewMockRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.seed(&BackupMetadata{TenantID: "CHU-Sud", Type: BackupTypeComplete, Status: StatusSuccess,
		PrimaryLocation: "/backups/x", StartedAt: base})
	target := repo.seed(&BackupMetadata{TenantID: "CHU-Nord", Type: BackupTypeIncremental, Status: StatusSuccess,
		PrimaryLocation: "/backups/x", StartedAt: base.Add(time.Hour)})

	_, err := NewChainResolver(repo).Resolve(context.Background(), target)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeBrokenChain))
}
