package domain

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// VariantID: идентификатор покупаемого варианта товара.
type VariantID int64

func (id VariantID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON принимает идентификатор как числом, так и строкой.
func (id *VariantID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("variant id %q: %w", s, err)
		}
		*id = VariantID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = VariantID(v)
	return nil
}

// ParseVariantID разбирает идентификатор варианта из строки (форма, URL).
func ParseVariantID(s string) (VariantID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrVariantRequired
	}
	return VariantID(v), nil
}

// CartLine: одна позиция корзины.
type CartLine struct {
	// LineIndex: позиция строки в корзине, начиная с 1.
	LineIndex int
	VariantID VariantID
	Quantity  int
	// Key: ключ строки, назначенный backend (может быть пустым).
	Key            string
	Title          string
	PriceMinor     int64
	LinePriceMinor int64
}

// CartSnapshot: неизменяемый снимок состояния корзины на момент ответа backend.
type CartSnapshot struct {
	ItemCount int
	Currency  string
	// TotalMinor: итоговая сумма корзины в минимальных единицах.
	TotalMinor int64
	Lines      []CartLine
	// Raw хранит исходный ответ backend без изменений.
	Raw []byte
}

// Clone возвращает глубокую копию снимка.
func (s CartSnapshot) Clone() CartSnapshot {
	clone := s
	if s.Lines != nil {
		clone.Lines = make([]CartLine, len(s.Lines))
		copy(clone.Lines, s.Lines)
	}
	if s.Raw != nil {
		clone.Raw = make([]byte, len(s.Raw))
		copy(clone.Raw, s.Raw)
	}
	return clone
}

// Line возвращает строку по её номеру.
func (s CartSnapshot) Line(index int) (CartLine, bool) {
	for _, line := range s.Lines {
		if line.LineIndex == index {
			return line, true
		}
	}
	return CartLine{}, false
}

// Total возвращает итог корзины как Money.
func (s CartSnapshot) Total() Money {
	return Money{AmountMinor: s.TotalMinor, Currency: s.Currency}
}

type wireLine struct {
	ID        *VariantID `json:"id"`
	VariantID *VariantID `json:"variant_id"`
	Quantity  *int       `json:"quantity"`
	Key       string     `json:"key"`
	Title     string     `json:"title"`
	Price     int64      `json:"price"`
	LinePrice int64      `json:"line_price"`
}

type wireCart struct {
	ItemCount  *int       `json:"item_count"`
	Currency   string     `json:"currency"`
	TotalPrice int64      `json:"total_price"`
	Items      []wireLine `json:"items"`
	Lines      []wireLine `json:"lines"`
}

var errItemCountMissing = errors.New("item_count is missing")

// ParseSnapshot разбирает ответ backend в CartSnapshot.
// Строки с нулевым количеством в снимок не попадают.
func ParseSnapshot(raw []byte) (CartSnapshot, error) {
	var wire wireCart
	if err := json.Unmarshal(raw, &wire); err != nil {
		return CartSnapshot{}, fmt.Errorf("decode cart: %w", err)
	}
	if wire.ItemCount == nil {
		return CartSnapshot{}, errItemCountMissing
	}
	if *wire.ItemCount < 0 {
		return CartSnapshot{}, fmt.Errorf("item_count is negative: %d", *wire.ItemCount)
	}

	source := wire.Items
	if source == nil {
		source = wire.Lines
	}

	lines := make([]CartLine, 0, len(source))
	for i, wl := range source {
		if wl.Quantity == nil {
			return CartSnapshot{}, fmt.Errorf("line %d: quantity is missing", i+1)
		}
		if *wl.Quantity < 0 {
			return CartSnapshot{}, fmt.Errorf("line %d: quantity is negative", i+1)
		}
		if *wl.Quantity == 0 {
			continue
		}
		variantID := wl.VariantID
		if variantID == nil {
			variantID = wl.ID
		}
		if variantID == nil {
			return CartSnapshot{}, fmt.Errorf("line %d: variant id is missing", i+1)
		}
		lines = append(lines, CartLine{
			LineIndex:      len(lines) + 1,
			VariantID:      *variantID,
			Quantity:       *wl.Quantity,
			Key:            wl.Key,
			Title:          wl.Title,
			PriceMinor:     wl.Price,
			LinePriceMinor: wl.LinePrice,
		})
	}

	stored := make([]byte, len(raw))
	copy(stored, raw)

	return CartSnapshot{
		ItemCount:  *wire.ItemCount,
		Currency:   wire.Currency,
		TotalMinor: wire.TotalPrice,
		Lines:      lines,
		Raw:        stored,
	}, nil
}

// LooksLikeCart сообщает, содержит ли ответ корзину целиком (а не одну позицию).
func LooksLikeCart(raw []byte) bool {
	var shape struct {
		ItemCount *int `json:"item_count"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return false
	}
	return shape.ItemCount != nil
}
