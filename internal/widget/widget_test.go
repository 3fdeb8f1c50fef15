package widget

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

// stubClient отвечает на AddItem по заранее заданным ошибкам; gate, если задан,
// задерживает ответ до закрытия.
type stubClient struct {
	mu       sync.Mutex
	failures map[domain.VariantID]error
	gate     chan struct{}
	count    int
}

func (c *stubClient) FetchCart(context.Context) (domain.CartSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CartSnapshot{ItemCount: c.count}, nil
}

func (c *stubClient) AddItem(_ context.Context, id domain.VariantID, quantity int) (domain.CartSnapshot, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[id]; err != nil {
		return domain.CartSnapshot{}, err
	}
	c.count += quantity
	return domain.CartSnapshot{ItemCount: c.count}, nil
}

func (c *stubClient) SetLineQuantity(context.Context, int, int) (domain.CartSnapshot, error) {
	return domain.CartSnapshot{}, nil
}

type openerStub struct {
	mu    sync.Mutex
	opens int
}

func (o *openerStub) Open(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	return nil
}

func newStore(client *stubClient) *cart.Store {
	return cart.NewStore(client, cart.WithLogger(testLogger()))
}

func catalog(t *testing.T) *variant.Catalog {
	t.Helper()
	c, err := variant.LoadCatalog([]byte(`[
		{"id": 1, "options": ["S"], "available": true, "price": 1000},
		{"id": 2, "options": ["M"], "available": false, "price": 1000},
		{"id": 3, "options": ["L"], "available": true, "price": 1200}
	]`))
	require.NoError(t, err)
	return c
}

func TestProductForm_ButtonFollowsView(t *testing.T) {
	store := newStore(&stubClient{})
	button := NewStateButton()
	form := NewProductForm(store, nil, button, testLogger())
	defer form.Detach()
	c := catalog(t)

	form.ApplyView(c.View([]string{"S"}))
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())

	form.ApplyView(c.View([]string{"M"}))
	require.Equal(t, ButtonState{Label: LabelSoldOut, Disabled: true}, button.State())

	form.ApplyView(c.View([]string{"XL"}))
	require.Equal(t, ButtonState{Label: LabelUnavailable, Disabled: true}, button.State())

	err := form.Submit(context.Background())
	require.ErrorIs(t, err, domain.ErrVariantUnavailable)
}

func TestProductForm_SubmitAddsAndOpensDrawer(t *testing.T) {
	client := &stubClient{}
	store := newStore(client)
	opener := &openerStub{}
	form := NewProductForm(store, opener, NewStateButton(), testLogger())
	defer form.Detach()

	form.ApplyView(catalog(t).View([]string{"S"}))
	form.SetQuantity(3)
	require.NoError(t, form.Submit(context.Background()))

	require.Equal(t, 3, store.State().ItemCount())
	require.Equal(t, 1, opener.opens)
	require.Empty(t, form.Message())
}

func TestProductForm_ValidationFailureShowsDescription(t *testing.T) {
	client := &stubClient{failures: map[domain.VariantID]error{
		1: domain.NewValidationError("add_item", 422, "All 1 Tee are in your cart."),
	}}
	store := newStore(client)
	opener := &openerStub{}
	button := NewStateButton()
	form := NewProductForm(store, opener, button, testLogger())
	defer form.Detach()

	form.ApplyView(catalog(t).View([]string{"S"}))
	err := form.Submit(context.Background())

	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, "All 1 Tee are in your cart.", form.Message())
	require.Zero(t, opener.opens)
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())
}

func TestProductForm_MirrorsPendingMarker(t *testing.T) {
	client := &stubClient{gate: make(chan struct{})}
	store := newStore(client)
	button := NewStateButton()
	form := NewProductForm(store, nil, button, testLogger())
	defer form.Detach()
	form.ApplyView(catalog(t).View([]string{"S"}))

	done := make(chan error, 1)
	go func() { done <- form.Submit(context.Background()) }()

	require.Eventually(t, func() bool {
		s := button.State()
		return s.Loading && s.Disabled
	}, time.Second, time.Millisecond)

	close(client.gate)
	require.NoError(t, <-done)
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())
}

func TestProductForm_SwitchingVariantRecomputesPending(t *testing.T) {
	client := &stubClient{gate: make(chan struct{})}
	store := newStore(client)
	button := NewStateButton()
	form := NewProductForm(store, nil, button, testLogger())
	defer form.Detach()
	c := catalog(t)
	form.ApplyView(c.View([]string{"S"}))

	done := make(chan error, 1)
	go func() { done <- form.Submit(context.Background()) }()
	require.Eventually(t, func() bool {
		return button.State().Loading
	}, time.Second, time.Millisecond)

	form.ApplyView(c.View([]string{"L"}))
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())

	form.ApplyView(c.View([]string{"S"}))
	require.Equal(t, ButtonState{Label: LabelAddToCart, Loading: true, Disabled: true}, button.State())

	close(client.gate)
	require.NoError(t, <-done)
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())
}

func TestProductForm_IndependentInstances(t *testing.T) {
	client := &stubClient{failures: map[domain.VariantID]error{
		1: domain.NewValidationError("add_item", 422, "Sold out"),
	}}
	store := newStore(client)
	c, err := variant.LoadCatalog([]byte(`[
		{"id": 1, "options": ["A"], "available": true},
		{"id": 2, "options": ["B"], "available": true}
	]`))
	require.NoError(t, err)

	buttonA, buttonB := NewStateButton(), NewStateButton()
	formA := NewProductForm(store, nil, buttonA, testLogger())
	formB := NewProductForm(store, nil, buttonB, testLogger())
	formA.ApplyView(c.View([]string{"A"}))
	formB.ApplyView(c.View([]string{"B"}))

	require.ErrorIs(t, formA.Submit(context.Background()), domain.ErrValidation)
	require.NoError(t, formB.Submit(context.Background()))

	require.Equal(t, "Sold out", formA.Message())
	require.Empty(t, formB.Message())
	require.Equal(t, 1, store.State().ItemCount())
}

type manualScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	pending func()
}

func (s *manualScheduler) schedule(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	s.pending = f
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		stopped := s.pending != nil
		s.pending = nil
		return stopped
	}
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	f := s.pending
	s.pending = nil
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

func TestCarouselCard_ShowsAddedThenRestores(t *testing.T) {
	store := newStore(&stubClient{})
	button := NewStateButton()
	scheduler := &manualScheduler{}
	card := NewCarouselCard(store, 7, button, scheduler.schedule)

	require.NoError(t, card.Click(context.Background()))
	require.Equal(t, ButtonState{Label: LabelAdded, Disabled: true}, button.State())
	require.Equal(t, AddedLabelDuration, scheduler.delay)
	require.Equal(t, 1, store.State().ItemCount())

	require.NoError(t, card.Click(context.Background()), "clicks while busy are ignored")
	require.Equal(t, 1, store.State().ItemCount())

	scheduler.fire()
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())

	require.NoError(t, card.Click(context.Background()))
	require.Equal(t, 2, store.State().ItemCount())
	card.Reset()
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())
}

func TestCarouselCard_FailureRestoresImmediately(t *testing.T) {
	client := &stubClient{failures: map[domain.VariantID]error{
		7: domain.NewTransportError("add_item", io.ErrUnexpectedEOF),
	}}
	button := NewStateButton()
	scheduler := &manualScheduler{}
	card := NewCarouselCard(newStore(client), 7, button, scheduler.schedule)

	require.ErrorIs(t, card.Click(context.Background()), domain.ErrTransport)
	require.Equal(t, ButtonState{Label: LabelAddToCart}, button.State())
	require.Nil(t, scheduler.pending)
	require.Equal(t, domain.VariantID(7), card.VariantID())
}
