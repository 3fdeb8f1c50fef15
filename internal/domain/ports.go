package domain

import "context"

// CartClient описывает удалённую корзину. Клиент не хранит состояние;
// каждая операция возвращает авторитетный снимок после изменения.
type CartClient interface {
	// FetchCart возвращает текущую корзину.
	FetchCart(ctx context.Context) (CartSnapshot, error)
	// AddItem добавляет quantity единиц варианта (повторный вызов добавит ещё раз).
	AddItem(ctx context.Context, variantID VariantID, quantity int) (CartSnapshot, error)
	// SetLineQuantity задаёт количество в строке; quantity=0 удаляет строку.
	SetLineQuantity(ctx context.Context, line int, quantity int) (CartSnapshot, error)
}

// PreferenceStore хранит локальные настройки витрины (ключ/строковое значение),
// например режим отображения коллекции.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}
