// Пакет model — доменные модели Media Engine.
// FileRecord — единая структура записи о загружаемом файле, используется
// как in-memory представление и как формат строки таблицы media_files.
package model

import (
	"time"
)

// FileState — состояние файла в конвейере загрузки/обработки.
type FileState string

const (
	// StateRequested — грант выдан, байты ещё не подтверждены
	StateRequested FileState = "requested"
	// StateUploaded — загрузка подтверждена владельцем, событие опубликовано
	StateUploaded FileState = "uploaded"
	// StateProcessing — worker начал обработку
	StateProcessing FileState = "processing"
	// StateReady — терминальное успешное состояние
	StateReady FileState = "ready"
	// StateFailed — терминальное состояние ошибки обработки
	StateFailed FileState = "failed"
)

// Terminal сообщает, является ли состояние терминальным.
// Терминальные состояния нельзя откатить — повторная обработка
// требует нового file_id.
func (s FileState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Variant — производный рендер исходного изображения.
type Variant struct {
	// Key — ключ варианта ("large", "thumbnail")
	Key string `json:"key"`

	// ObjectPath — путь объекта варианта в хранилище.
	// Выводится детерминированно из пути исходника:
	// {dir}/variants/thumb_{width}.{ext}
	ObjectPath string `json:"object_path"`

	// ByteSize — размер закодированного варианта в байтах
	ByteSize int64 `json:"byte_size"`
}

// FileRecord — запись о загружаемом файле. Соответствует строке
// таблицы media_files. file_id — ключ связи между хранилищем объектов,
// базой метаданных и сообщением шины событий.
type FileRecord struct {
	// FileID — уникальный идентификатор файла (UUID v4), immutable
	FileID string `json:"file_id"`

	// OwnerID — идентификатор владельца (из JWT sub), immutable
	OwnerID string `json:"owner_id"`

	// Name — имя файла, заявленное клиентом при выдаче гранта
	Name string `json:"name"`

	// DeclaredSize — размер в байтах, заявленный клиентом.
	// Не проверяется против фактического объекта.
	DeclaredSize int64 `json:"declared_size"`

	// DeclaredMime — MIME-тип, заявленный клиентом. Используется
	// только для маршрутизации обработки (префикс image/).
	DeclaredMime string `json:"declared_mime"`

	// ObjectPath — путь исходного объекта в хранилище.
	// Формат: {owner_id}/{file_id}/{name}. Стабилен на всё время жизни записи.
	ObjectPath string `json:"object_path"`

	// State — текущее состояние конвейера
	State FileState `json:"state"`

	// FailureReason — причина перехода в failed (пустая строка для остальных состояний)
	FailureReason string `json:"failure_reason,omitempty"`

	// Variants — производные рендеры. Пустой список для не-изображений.
	// Заполняется одним атомарным обновлением вместе с переходом в ready.
	Variants []Variant `json:"variants"`

	// CreatedAt — момент выдачи гранта (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — момент последнего перехода состояния (UTC),
	// монотонно неубывающий
	UpdatedAt time.Time `json:"updated_at"`
}
