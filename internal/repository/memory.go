package repository

import (
	"context"
	"sync"
	"time"

	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
	"github.com/nicholasjvr/inque.com-sub002/internal/domain/state"
)

// MemoryRepository — in-memory реализация FileRepository.
// Используется в тестах и локальной разработке без PostgreSQL.
// Потокобезопасна, переходы выполняются под мьютексом — та же
// CAS-семантика, что и у SQL-реализации.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*model.FileRecord
}

// NewMemoryRepository создаёт пустой in-memory репозиторий.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*model.FileRecord),
	}
}

// Create вставляет новую запись.
func (m *MemoryRepository) Create(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneRecord(rec)
	m.records[rec.FileID] = clone
	return nil
}

// GetByID возвращает копию записи или ErrNotFound.
func (m *MemoryRepository) GetByID(_ context.Context, fileID string) (*model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// TransitionState переводит запись в target при допустимом исходном состоянии.
func (m *MemoryRepository) TransitionState(_ context.Context, fileID string, target model.FileState) (*model.FileRecord, error) {
	if err := state.Validate(target); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	if !state.CanTransition(rec.State, target) {
		return nil, ErrInvalidTransition
	}

	rec.State = target
	rec.UpdatedAt = monotonicNow(rec.UpdatedAt)
	return cloneRecord(rec), nil
}

// MarkReady переводит processing → ready и записывает варианты.
func (m *MemoryRepository) MarkReady(_ context.Context, fileID string, variants []model.Variant) (*model.FileRecord, error) {
	if variants == nil {
		variants = []model.Variant{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	if !state.CanTransition(rec.State, model.StateReady) {
		return nil, ErrInvalidTransition
	}

	rec.State = model.StateReady
	rec.Variants = append([]model.Variant(nil), variants...)
	rec.UpdatedAt = monotonicNow(rec.UpdatedAt)
	return cloneRecord(rec), nil
}

// MarkFailed переводит processing → failed с причиной.
func (m *MemoryRepository) MarkFailed(_ context.Context, fileID string, reason string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	if !state.CanTransition(rec.State, model.StateFailed) {
		return nil, ErrInvalidTransition
	}

	rec.State = model.StateFailed
	rec.FailureReason = reason
	rec.UpdatedAt = monotonicNow(rec.UpdatedAt)
	return cloneRecord(rec), nil
}

// cloneRecord возвращает глубокую копию записи, чтобы вызывающий код
// не мог мутировать внутреннее состояние репозитория.
func cloneRecord(rec *model.FileRecord) *model.FileRecord {
	clone := *rec
	clone.Variants = append([]model.Variant(nil), rec.Variants...)
	if clone.Variants == nil {
		clone.Variants = []model.Variant{}
	}
	return &clone
}

// monotonicNow гарантирует неубывание updated_at.
func monotonicNow(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}
