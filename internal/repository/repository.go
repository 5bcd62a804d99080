// Пакет repository — слой доступа к реестру media_files.
// Реестр — единственный разделяемый ресурс конвейера: все записи
// обновляются одиночными атомарными UPDATE по file_id, переходы
// состояний выполняются условно (compare-and-swap по текущему
// состоянию). Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrInvalidTransition — запись существует, но её текущее состояние
	// не входит в допустимые исходные для запрошенного перехода.
	ErrInvalidTransition = errors.New("недопустимый переход состояния")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FileRepository — доступ к записям FileRecord.
//
// Контракт переходов: TransitionState/MarkReady/MarkFailed выполняют
// условное обновление — строка меняется только если её текущее
// состояние входит в допустимые исходные (domain/state.AllowedPrior).
// Конкурирующая повторная доставка события, проигравшая CAS,
// получает ErrInvalidTransition, а не затирает терминальную запись.
type FileRepository interface {
	// Create вставляет новую запись (state = requested).
	Create(ctx context.Context, rec *model.FileRecord) error
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// TransitionState переводит запись в target из допустимого исходного
	// состояния и возвращает обновлённую запись.
	TransitionState(ctx context.Context, fileID string, target model.FileState) (*model.FileRecord, error)
	// MarkReady атомарно переводит processing → ready и записывает варианты.
	MarkReady(ctx context.Context, fileID string, variants []model.Variant) (*model.FileRecord, error)
	// MarkFailed атомарно переводит processing → failed с причиной.
	MarkFailed(ctx context.Context, fileID string, reason string) (*model.FileRecord, error)
}
