package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
	"github.com/nicholasjvr/inque.com-sub002/internal/domain/state"
)

// fileColumns — список столбцов таблицы media_files для SELECT/RETURNING.
// DRY: одно место для всех запросов.
const fileColumns = `file_id, owner_id, name, declared_size, declared_mime,
	object_path, state, failure_reason, variants, created_at, updated_at`

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий записей файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет новую запись реестра.
func (r *fileRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	variantsJSON, err := json.Marshal(rec.Variants)
	if err != nil {
		return fmt.Errorf("сериализация вариантов: %w", err)
	}
	if rec.Variants == nil {
		variantsJSON = []byte("[]")
	}

	query := `
		INSERT INTO media_files
			(file_id, owner_id, name, declared_size, declared_mime,
			 object_path, state, failure_reason, variants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		rec.FileID, rec.OwnerID, rec.Name, rec.DeclaredSize, rec.DeclaredMime,
		rec.ObjectPath, rec.State, rec.FailureReason, variantsJSON,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки записи файла: %w", err)
	}
	return nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM media_files WHERE file_id = $1`, fileColumns)

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return rec, nil
}

// TransitionState переводит запись в target условным UPDATE:
// строка меняется только если текущее состояние входит в AllowedPrior(target).
// updated_at не убывает даже при рассинхронизации часов реплик.
func (r *fileRepo) TransitionState(ctx context.Context, fileID string, target model.FileState) (*model.FileRecord, error) {
	if err := state.Validate(target); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE media_files
		SET state = $1, updated_at = GREATEST(updated_at, $2)
		WHERE file_id = $3 AND state = ANY($4)
		RETURNING %s`, fileColumns)

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query,
		target, time.Now().UTC(), fileID, statesToStrings(state.AllowedPrior(target)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMiss(ctx, fileID)
		}
		return nil, fmt.Errorf("ошибка перехода состояния: %w", err)
	}
	return rec, nil
}

// MarkReady атомарно переводит processing → ready и записывает варианты
// одним UPDATE (единственная запись поля variants за жизнь записи).
func (r *fileRepo) MarkReady(ctx context.Context, fileID string, variants []model.Variant) (*model.FileRecord, error) {
	if variants == nil {
		variants = []model.Variant{}
	}
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("сериализация вариантов: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE media_files
		SET state = $1, variants = $2, updated_at = GREATEST(updated_at, $3)
		WHERE file_id = $4 AND state = ANY($5)
		RETURNING %s`, fileColumns)

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query,
		model.StateReady, variantsJSON, time.Now().UTC(), fileID,
		statesToStrings(state.AllowedPrior(model.StateReady)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMiss(ctx, fileID)
		}
		return nil, fmt.Errorf("ошибка завершения обработки: %w", err)
	}
	return rec, nil
}

// MarkFailed атомарно переводит processing → failed с причиной.
func (r *fileRepo) MarkFailed(ctx context.Context, fileID string, reason string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`
		UPDATE media_files
		SET state = $1, failure_reason = $2, updated_at = GREATEST(updated_at, $3)
		WHERE file_id = $4 AND state = ANY($5)
		RETURNING %s`, fileColumns)

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query,
		model.StateFailed, reason, time.Now().UTC(), fileID,
		statesToStrings(state.AllowedPrior(model.StateFailed)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMiss(ctx, fileID)
		}
		return nil, fmt.Errorf("ошибка фиксации сбоя обработки: %w", err)
	}
	return rec, nil
}

// classifyMiss различает отсутствие записи и проигранный CAS.
func (r *fileRepo) classifyMiss(ctx context.Context, fileID string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_files WHERE file_id = $1)`, fileID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки существования записи: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// scanFileRecord читает одну строку media_files.
func scanFileRecord(row pgx.Row) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	var variantsJSON []byte

	err := row.Scan(
		&rec.FileID, &rec.OwnerID, &rec.Name, &rec.DeclaredSize, &rec.DeclaredMime,
		&rec.ObjectPath, &rec.State, &rec.FailureReason, &variantsJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(variantsJSON) > 0 {
		if err := json.Unmarshal(variantsJSON, &rec.Variants); err != nil {
			return nil, fmt.Errorf("десериализация вариантов: %w", err)
		}
	}
	if rec.Variants == nil {
		rec.Variants = []model.Variant{}
	}
	return rec, nil
}

// statesToStrings преобразует состояния в []string для ANY($n).
func statesToStrings(states []model.FileState) []string {
	result := make([]string, 0, len(states))
	for _, s := range states {
		result = append(result, string(s))
	}
	return result
}
