package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/tracker/internal/domain"
)

// MockPositionStore is an in-memory implementation of domain.PositionStore for testing.
// It enforces the same optimistic versioning as the SQLite repository.
type MockPositionStore struct {
	mu          sync.RWMutex
	positions   map[int64]domain.Position
	nextID      int64
	err         error
	saveErrors  map[int64]error
	conflictsOn map[int64]int
	saveCalls   int
}

// NewMockPositionStore creates a new mock position store
func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{
		positions:   make(map[int64]domain.Position),
		saveErrors:  make(map[int64]error),
		conflictsOn: make(map[int64]int),
	}
}

// SetPositions replaces the store content; positions without an ID get one
func (m *MockPositionStore) SetPositions(positions []domain.Position) []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions = make(map[int64]domain.Position, len(positions))
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.ID == 0 {
			m.nextID++
			p.ID = m.nextID
		} else if p.ID > m.nextID {
			m.nextID = p.ID
		}
		if p.Version == 0 {
			p.Version = 1
		}
		m.positions[p.ID] = p
		out = append(out, p)
	}
	return out
}

// SetError makes every call fail with err
func (m *MockPositionStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailSave makes Save fail for one position
func (m *MockPositionStore) FailSave(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErrors[id] = err
}

// ConflictOnSave makes the next n saves of a position fail with a version conflict,
// bumping the stored version as a concurrent writer would
func (m *MockPositionStore) ConflictOnSave(id int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictsOn[id] = n
}

// SaveCalls returns the number of Save invocations
func (m *MockPositionStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// Get returns a stored position without going through the interface
func (m *MockPositionStore) Get(id int64) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	return p, ok
}

func (m *MockPositionStore) filter(keep func(domain.Position) bool) []domain.Position {
	out := make([]domain.Position, 0)
	for _, p := range m.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetBySymbol returns positions holding symbol
func (m *MockPositionStore) GetBySymbol(_ context.Context, symbol string) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	symbol = domain.NormalizeSymbol(symbol)
	return m.filter(func(p domain.Position) bool { return p.Symbol != "" && p.Symbol == symbol }), nil
}

// GetByOwner returns positions owned by ownerID
func (m *MockPositionStore) GetByOwner(_ context.Context, ownerID int64) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.filter(func(p domain.Position) bool { return p.OwnerID == ownerID }), nil
}

// GetByID returns one position
func (m *MockPositionStore) GetByID(_ context.Context, id int64) (*domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

// GetAll returns every position
func (m *MockPositionStore) GetAll(_ context.Context) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.filter(func(domain.Position) bool { return true }), nil
}

// Create inserts a position
func (m *MockPositionStore) Create(_ context.Context, position domain.Position) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Position{}, m.err
	}
	m.nextID++
	position.ID = m.nextID
	position.Version = 1
	if position.CreatedAt.IsZero() {
		position.CreatedAt = time.Now()
	}
	position.UpdatedAt = position.CreatedAt
	m.positions[position.ID] = position
	return position, nil
}

// Save persists a position with version checking
func (m *MockPositionStore) Save(_ context.Context, position domain.Position) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.err != nil {
		return domain.Position{}, m.err
	}
	if err, ok := m.saveErrors[position.ID]; ok {
		return domain.Position{}, err
	}

	stored, ok := m.positions[position.ID]
	if !ok {
		return domain.Position{}, fmt.Errorf("position %d: %w", position.ID, domain.ErrNotFound)
	}

	if n := m.conflictsOn[position.ID]; n > 0 {
		m.conflictsOn[position.ID] = n - 1
		stored.Version++
		m.positions[position.ID] = stored
	}

	if stored.Version != position.Version {
		return domain.Position{}, fmt.Errorf("position %d at version %d: %w", position.ID, position.Version, domain.ErrConcurrentConflict)
	}

	position.Version++
	position.UpdatedAt = time.Now()
	m.positions[position.ID] = position
	return position, nil
}

// Delete removes a position
func (m *MockPositionStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.positions[id]; !ok {
		return fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	delete(m.positions, id)
	return nil
}

// MockSnapshotStore is an in-memory append-only snapshot store for testing
type MockSnapshotStore struct {
	mu         sync.RWMutex
	records    []domain.SnapshotRecord
	insertErrs map[int64]error
	failNext   int
	err        error
}

// NewMockSnapshotStore creates a new mock snapshot store
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{insertErrs: make(map[int64]error)}
}

// SetError makes every call fail with err
func (m *MockSnapshotStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailInsertFor makes inserts for one position fail
func (m *MockSnapshotStore) FailInsertFor(positionID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErrs[positionID] = err
}

// FailNextInserts makes the next n inserts fail with a persistence error
func (m *MockSnapshotStore) FailNextInserts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// SetRecords replaces the stored records
func (m *MockSnapshotStore) SetRecords(records []domain.SnapshotRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]domain.SnapshotRecord(nil), records...)
}

// Records returns a copy of every stored record
func (m *MockSnapshotStore) Records() []domain.SnapshotRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.SnapshotRecord(nil), m.records...)
}

// Insert appends a record
func (m *MockSnapshotStore) Insert(_ context.Context, record domain.SnapshotRecord) (domain.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.SnapshotRecord{}, m.err
	}
	if err, ok := m.insertErrs[record.PositionID]; ok {
		return domain.SnapshotRecord{}, err
	}
	if m.failNext > 0 {
		m.failNext--
		return domain.SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", domain.ErrPersistence)
	}
	m.records = append(m.records, record)
	return record, nil
}

// QueryRange returns records of positionIDs with snapshot time in [start, end]
func (m *MockSnapshotStore) QueryRange(_ context.Context, positionIDs []int64, start, end time.Time) ([]domain.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	ids := make(map[int64]bool, len(positionIDs))
	for _, id := range positionIDs {
		ids[id] = true
	}

	out := make([]domain.SnapshotRecord, 0)
	for _, r := range m.records {
		if !ids[r.PositionID] || r.SnapshotTime.Before(start) || r.SnapshotTime.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
