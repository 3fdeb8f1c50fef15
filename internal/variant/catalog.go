// Package variant разрешает выбранные опции товара в конкретный вариант
// по встроенному в страницу каталогу.
package variant

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type wireMedia struct {
	ID int64 `json:"id"`
}

type wireVariant struct {
	ID              domain.VariantID `json:"id"`
	Title           string           `json:"title"`
	Options         []string         `json:"options"`
	Available       bool             `json:"available"`
	Price           int64            `json:"price"`
	FeaturedMedia   *wireMedia       `json:"featured_media"`
	FeaturedMediaID *int64           `json:"featured_media_id"`
}

type wireProduct struct {
	Handle   string        `json:"handle"`
	Currency string        `json:"currency"`
	Options  []string      `json:"options"`
	Variants []wireVariant `json:"variants"`
}

// Catalog: неизменяемый набор вариантов одного товара.
type Catalog struct {
	handle      string
	optionNames []string
	variants    []domain.Variant
}

// LoadCatalog разбирает каталог: либо массив вариантов, либо объект товара
// с полями handle, options и variants.
func LoadCatalog(raw []byte) (*Catalog, error) {
	raw = bytes.TrimSpace(raw)
	var product wireProduct
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &product.Variants); err != nil {
			return nil, fmt.Errorf("decode variants: %w", err)
		}
	} else if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return newCatalog(product)
}

func newCatalog(product wireProduct) (*Catalog, error) {
	if len(product.Variants) == 0 {
		return nil, domain.ErrCatalogEmpty
	}
	dimensions := len(product.Variants[0].Options)
	if len(product.Options) > 0 && len(product.Options) != dimensions {
		return nil, fmt.Errorf("%w: product declares %d options, variants have %d",
			domain.ErrOptionDimension, len(product.Options), dimensions)
	}

	variants := make([]domain.Variant, 0, len(product.Variants))
	for _, wv := range product.Variants {
		if len(wv.Options) != dimensions {
			return nil, fmt.Errorf("%w: variant %s has %d options, want %d",
				domain.ErrOptionDimension, wv.ID, len(wv.Options), dimensions)
		}
		v := domain.Variant{
			ID:        wv.ID,
			Title:     wv.Title,
			Options:   append([]string(nil), wv.Options...),
			Available: wv.Available,
			Price:     domain.Money{AmountMinor: wv.Price, Currency: product.Currency},
		}
		switch {
		case wv.FeaturedMedia != nil:
			id := wv.FeaturedMedia.ID
			v.FeaturedMediaID = &id
		case wv.FeaturedMediaID != nil:
			id := *wv.FeaturedMediaID
			v.FeaturedMediaID = &id
		}
		variants = append(variants, v)
	}

	return &Catalog{
		handle:      product.Handle,
		optionNames: append([]string(nil), product.Options...),
		variants:    variants,
	}, nil
}

// Handle возвращает handle товара (пустой для каталога-массива).
func (c *Catalog) Handle() string {
	return c.handle
}

// OptionNames возвращает названия измерений, если они известны.
func (c *Catalog) OptionNames() []string {
	return append([]string(nil), c.optionNames...)
}

// Dimensions возвращает число измерений опций.
func (c *Catalog) Dimensions() int {
	return len(c.variants[0].Options)
}

// Variants возвращает копию списка вариантов.
func (c *Catalog) Variants() []domain.Variant {
	return append([]domain.Variant(nil), c.variants...)
}

// Resolve ищет вариант с точным позиционным совпадением опций.
// Отсутствие совпадения: обычный результат, а не ошибка.
func (c *Catalog) Resolve(chosen []string) (domain.Variant, bool) {
	for _, v := range c.variants {
		if v.Matches(chosen) {
			return v, true
		}
	}
	return domain.Variant{}, false
}

// DefaultVariant возвращает первый доступный вариант, иначе первый по порядку.
func (c *Catalog) DefaultVariant() domain.Variant {
	for _, v := range c.variants {
		if v.Available {
			return v
		}
	}
	return c.variants[0]
}

// View разрешает опции и строит производное состояние для поверхностей.
func (c *Catalog) View(chosen []string) View {
	v, ok := c.Resolve(chosen)
	if !ok {
		return View{Unavailable: true}
	}
	return newView(v)
}
