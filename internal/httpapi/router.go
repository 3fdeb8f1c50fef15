// Package httpapi открывает поверхности агента (счётчик, панель корзины,
// кнопки «в корзину», выбор варианта, настройки) по локальному HTTP.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/drawer"
	"github.com/vladislavdragonenkov/storefront/internal/notice"
	"github.com/vladislavdragonenkov/storefront/internal/projector"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
	"github.com/vladislavdragonenkov/storefront/internal/widget"
)

// CartStore: операции cart.Store, доступные по HTTP.
type CartStore interface {
	State() cart.State
	Subscribe(listener cart.Listener) func()
	Refresh(ctx context.Context) error
	Add(ctx context.Context, variantID domain.VariantID, quantity int) error
	SetQuantity(ctx context.Context, line int, quantity int) error
}

// Drawer: операции панели корзины.
type Drawer interface {
	Open(ctx context.Context) error
	Close()
	Phase() drawer.Phase
	Body() drawer.Body
	ChangeQuantity(ctx context.Context, line, delta int) error
	RemoveLine(ctx context.Context, line int) error
}

// Dependencies: компоненты, которые обслуживает роутер.
type Dependencies struct {
	Store          CartStore
	Drawer         Drawer
	Badge          *projector.Badge
	Catalogs       *variant.Registry
	Notices        *notice.Board
	Preferences    domain.PreferenceStore
	Logger         *log.Entry
	RequestTimeout time.Duration
}

type handler struct {
	deps   Dependencies
	logger *log.Entry

	mu    sync.Mutex
	cards map[domain.VariantID]*carouselEntry
}

type carouselEntry struct {
	card   *widget.CarouselCard
	button *widget.StateButton
}

// NewRouter собирает chi-роутер.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	h := &handler{
		deps:   deps,
		logger: logger,
		cards:  make(map[domain.VariantID]*carouselEntry),
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Get("/count", h.getCount)
		r.Post("/add", h.addItem)
		r.Post("/change", h.changeLine)
		r.Post("/refresh", h.refresh)
	})

	r.Route("/drawer", func(r chi.Router) {
		r.Get("/", h.getDrawer)
		r.Get("/fragment", h.getDrawerFragment)
		r.Post("/open", h.openDrawer)
		r.Post("/close", h.closeDrawer)
		r.Post("/lines/{line}/increase", h.adjustLine(1))
		r.Post("/lines/{line}/decrease", h.adjustLine(-1))
		r.Post("/lines/{line}/remove", h.removeLine)
	})

	r.Route("/products/{handle}", func(r chi.Router) {
		r.Get("/variant", h.getVariant)
		r.Post("/add", h.addProduct)
	})

	r.Route("/carousel/{variant}", func(r chi.Router) {
		r.Get("/", h.getCarouselCard)
		r.Post("/add", h.clickCarouselCard)
	})

	r.Route("/preferences", func(r chi.Router) {
		r.Get("/", h.listPreferences)
		r.Get("/{key}", h.getPreference)
		r.Put("/{key}", h.putPreference)
		r.Delete("/{key}", h.deletePreference)
	})

	r.Route("/notices", func(r chi.Router) {
		r.Get("/", h.listNotices)
		r.Delete("/{id}", h.dismissNotice)
	})

	return r
}
