package drawer

import "sync"

// PageLock: счётчик блокировок прокрутки страницы.
type PageLock struct {
	mu    sync.Mutex
	depth int
}

// Lock увеличивает глубину блокировки.
func (l *PageLock) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.depth++
}

// Unlock уменьшает глубину блокировки, не опускаясь ниже нуля.
func (l *PageLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth > 0 {
		l.depth--
	}
}

// Locked сообщает, заблокирована ли прокрутка.
func (l *PageLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0
}

// Frame хранит видимость и последнее содержимое панели для внешнего слоя отображения.
type Frame struct {
	mu      sync.RWMutex
	visible bool
	body    Body
	paints  int
}

// Show делает панель видимой.
func (f *Frame) Show() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = true
}

// Hide скрывает панель.
func (f *Frame) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = false
}

// Paint сохраняет содержимое.
func (f *Frame) Paint(body Body) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.paints++
}

// View возвращает последнее содержимое и признак видимости.
func (f *Frame) View() (Body, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.body, f.visible
}

// Paints возвращает число отрисовок.
func (f *Frame) Paints() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paints
}
