package domain

// Variant: конкретная покупаемая конфигурация товара (размер/цвет и т.д.).
// Каталог вариантов загружается один раз на просмотр товара и не меняется.
type Variant struct {
	ID    VariantID
	Title string
	// Options: значения по каждому измерению, в порядке измерений товара.
	Options   []string
	Available bool
	Price     Money
	// FeaturedMediaID: идентификатор основного медиа варианта, если есть.
	FeaturedMediaID *int64
}

// Matches проверяет позиционное совпадение опций.
func (v Variant) Matches(chosen []string) bool {
	if len(v.Options) != len(chosen) {
		return false
	}
	for i, option := range v.Options {
		if chosen[i] != option {
			return false
		}
	}
	return true
}
