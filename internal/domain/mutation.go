package domain

import (
	"fmt"
	"time"
)

// MutationKind: вид удалённой записи в корзину.
type MutationKind string

const (
	MutationAdd         MutationKind = "add"
	MutationSetQuantity MutationKind = "set_quantity"
)

// TargetKind определяет пространство ключей, в котором действует pending-маркер.
type TargetKind string

const (
	TargetVariant TargetKind = "variant"
	TargetLine    TargetKind = "line"
)

// TargetKey: ключ, к которому привязаны pending-маркер и счётчик последовательности.
type TargetKey struct {
	Kind TargetKind
	ID   int64
}

// VariantTarget строит ключ для добавления варианта.
func VariantTarget(id VariantID) TargetKey {
	return TargetKey{Kind: TargetVariant, ID: int64(id)}
}

// LineTarget строит ключ для изменения количества в строке.
func LineTarget(line int) TargetKey {
	return TargetKey{Kind: TargetLine, ID: int64(line)}
}

func (k TargetKey) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// PendingMutation существует, только пока удалённый вызов для цели не завершён.
type PendingMutation struct {
	Kind              MutationKind
	Target            TargetKey
	RequestedQuantity int
	// Seq: номер запроса в последовательности своей цели.
	Seq       uint64
	StartedAt time.Time
}
