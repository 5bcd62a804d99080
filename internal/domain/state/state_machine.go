// Пакет state — конечный автомат жизненного цикла FileRecord.
//
// Цепочка состояний:
//
//	requested → uploaded → processing → ready   (терминальный успех)
//	                       processing → failed  (терминальная ошибка)
//
// Ни один переход не пропускает шаг, откат из терминальных состояний
// невозможен. Переход processing → processing разрешён: повторная
// доставка события после падения worker'а повторяет работу заново.
//
// Автомат не хранит состояние — истина живёт в строке media_files,
// а переходы применяются условным UPDATE по допустимым исходным
// состояниям (AllowedPrior).
package state

import (
	"fmt"

	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
)

// validTransitions — матрица допустимых переходов.
// Ключ — исходное состояние, значение — набор допустимых целевых.
var validTransitions = map[model.FileState]map[model.FileState]bool{
	model.StateRequested: {model.StateUploaded: true},
	model.StateUploaded:  {model.StateProcessing: true},
	model.StateProcessing: {
		model.StateProcessing: true, // повторная доставка события
		model.StateReady:      true,
		model.StateFailed:     true,
	},
	model.StateReady:  {}, // терминальное — переходы запрещены
	model.StateFailed: {}, // терминальное — переходы запрещены
}

// callerDriven — переходы, инициируемые вызывающей стороной (грант/подтверждение).
// Остальные переходы принадлежат исключительно worker'у.
var callerDriven = map[model.FileState]bool{
	model.StateUploaded: true,
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.FileState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// AllowedPrior возвращает список состояний, из которых допустим
// переход в target. Используется репозиторием для условного UPDATE
// (compare-and-swap по текущему состоянию).
func AllowedPrior(target model.FileState) []model.FileState {
	var result []model.FileState
	for from, targets := range validTransitions {
		if targets[target] {
			result = append(result, from)
		}
	}
	return result
}

// CallerDriven сообщает, инициируется ли переход в target вызывающей
// стороной (а не worker'ом).
func CallerDriven(target model.FileState) bool {
	return callerDriven[target]
}

// Validate проверяет, является ли строка допустимым состоянием.
func Validate(s model.FileState) error {
	switch s {
	case model.StateRequested, model.StateUploaded, model.StateProcessing,
		model.StateReady, model.StateFailed:
		return nil
	default:
		return fmt.Errorf("недопустимое состояние: %q", s)
	}
}

// TransitionError — ошибка недопустимого перехода состояния.
type TransitionError struct {
	From model.FileState
	To   model.FileState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %s → %s недопустим", e.From, e.To)
}

// Check возвращает TransitionError, если переход from → to недопустим.
func Check(from, to model.FileState) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
