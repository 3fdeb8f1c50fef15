package variant

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// View: производное от выбора состояние: вариант, цена, доступность покупки.
type View struct {
	// Variant равен nil, если такой комбинации опций нет.
	Variant *domain.Variant
	// Unavailable: комбинации нет или вариант распродан.
	Unavailable  bool
	CanAddToCart bool
	Price        string
	MediaID      *int64
}

func newView(v domain.Variant) View {
	return View{
		Variant:      &v,
		Unavailable:  !v.Available,
		CanAddToCart: v.Available,
		Price:        v.Price.Format(),
		MediaID:      v.FeaturedMediaID,
	}
}

// URL возвращает адрес страницы товара с выбранным вариантом (?variant=<id>).
// Без варианта возвращает base без изменений.
func (v View) URL(base string) string {
	if v.Variant == nil {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("variant", strconv.FormatInt(int64(v.Variant.ID), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Selection: выбранные значения опций; каждое измерение всегда заполнено.
// Не потокобезопасна: принадлежит одной поверхности.
type Selection struct {
	catalog *Catalog
	chosen  []string
	view    View
}

// NewSelection создаёт выбор со значениями варианта по умолчанию.
func NewSelection(catalog *Catalog) *Selection {
	s := &Selection{
		catalog: catalog,
		chosen:  append([]string(nil), catalog.DefaultVariant().Options...),
	}
	s.view = catalog.View(s.chosen)
	return s
}

// Chosen возвращает копию выбранных значений.
func (s *Selection) Chosen() []string {
	return append([]string(nil), s.chosen...)
}

// View возвращает состояние для текущего выбора.
func (s *Selection) View() View {
	return s.view
}

// Choose меняет значение одного измерения и пересчитывает вариант.
func (s *Selection) Choose(dimension int, value string) (View, error) {
	if dimension < 0 || dimension >= len(s.chosen) {
		return s.view, fmt.Errorf("%w: dimension %d of %d", domain.ErrOptionDimension, dimension, len(s.chosen))
	}
	s.chosen[dimension] = value
	s.view = s.catalog.View(s.chosen)
	return s.view, nil
}

// Set заменяет весь набор значений.
func (s *Selection) Set(options []string) (View, error) {
	if len(options) != len(s.chosen) {
		return s.view, fmt.Errorf("%w: got %d values, want %d", domain.ErrOptionDimension, len(options), len(s.chosen))
	}
	copy(s.chosen, options)
	s.view = s.catalog.View(s.chosen)
	return s.view, nil
}
