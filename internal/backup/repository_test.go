package backup

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/glebarez/go-sqlite"

	apperrors "hospital-backup/internal/errors"
)

// MockRepository is an in-memory Repository that stores copies like a real database would
type MockRepository struct {
	mu       sync.Mutex
	nextID   uint
	records  map[uint]*BackupMetadata
	saves    []Status
	saveErr  error
	// saveHook runs after every successful Save
	saveHook func(*BackupMetadata)
}

func NewMockRepository() *MockRepository {
	return &MockRepository{records: make(map[uint]*BackupMetadata)}
}

func cloneRecord(b *BackupMetadata) *BackupMetadata {
	c := *b
	c.Notes.Events = append([]Event(nil), b.Notes.Events...)
	return &c
}

func (m *MockRepository) Create(_ context.Context, b *BackupMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = time.Now()
	m.records[b.ID] = cloneRecord(b)
	m.saves = append(m.saves, b.Status)
	return nil
}

func (m *MockRepository) Save(_ context.Context, b *BackupMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.records[b.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("backup %d not found", b.ID), nil)
	}
	m.records[b.ID] = cloneRecord(b)
	m.saves = append(m.saves, b.Status)
	if m.saveHook != nil {
		m.saveHook(b)
	}
	return nil
}

func (m *MockRepository) FindByID(_ context.Context, id uint) (*BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("backup %d not found", id), nil)
	}
	return cloneRecord(b), nil
}

func (m *MockRepository) FindByBackupID(_ context.Context, backupID string) (*BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.records {
		if b.BackupID == backupID {
			return cloneRecord(b), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
}

func (m *MockRepository) ListByTenant(_ context.Context, tenantID string) ([]*BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BackupMetadata
	for _, b := range m.records {
		if b.TenantID == tenantID {
			out = append(out, cloneRecord(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out, nil
}

func (m *MockRepository) NextSequence(_ context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, b := range m.records {
		if b.TenantID == tenantID && b.SequenceNumber > max {
			max = b.SequenceNumber
		}
	}
	return max + 1, nil
}

func (m *MockRepository) get(t *testing.T, id uint) *BackupMetadata {
	t.Helper()
	b, err := m.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

// seed inserts a record directly, bypassing the manager
func (m *MockRepository) seed(b *BackupMetadata) *BackupMetadata {
	if b.BackupID == "" {
		b.BackupID = GenerateBackupID(b.StartedAt)
	}
	if b.CreatedBy == "" {
		b.CreatedBy = "tester"
	}
	_ = m.Create(context.Background(), b)
	return b
}

// openTenantDB creates a SQLite data source with wards, patients and admissions: 3 tables, 100 rows
func openTenantDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tenant.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE wards (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE patients (id INTEGER PRIMARY KEY, ward_id INTEGER REFERENCES wards(id), name TEXT, notes TEXT)`,
		`CREATE TABLE admissions (id INTEGER PRIMARY KEY, patient_id INTEGER REFERENCES patients(id), admitted_at TEXT)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}

	// 10 wards + 50 patients + 40 admissions
	for i := 1; i <= 10; i++ {
		_, err := db.Exec(`INSERT INTO wards (id, name) VALUES (?, ?)`, i, fmt.Sprintf("Ward %d's wing", i))
		require.NoError(t, err)
	}
	for i := 1; i <= 50; i++ {
		var notes interface{}
		if i%3 == 0 {
			notes = "allergic; penicillin"
		}
		_, err := db.Exec(`INSERT INTO patients (id, ward_id, name, notes) VALUES (?, ?, ?, ?)`,
			i, (i%10)+1, fmt.Sprintf("Patient %d", i), notes)
		require.NoError(t, err)
	}
	for i := 1; i <= 40; i++ {
		_, err := db.Exec(`INSERT INTO admissions (id, patient_id, admitted_at) VALUES (?, ?, ?)`,
			i, i, fmt.Sprintf("2026-01-%02d", (i%28)+1))
		require.NoError(t, err)
	}
	return db
}
