package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
)

type lineView struct {
	Line      int              `json:"line"`
	VariantID domain.VariantID `json:"variant_id"`
	Quantity  int              `json:"quantity"`
	Title     string           `json:"title,omitempty"`
	LinePrice string           `json:"line_price"`
}

type pendingView struct {
	Target            string `json:"target"`
	Kind              string `json:"kind"`
	RequestedQuantity int    `json:"requested_quantity"`
}

type cartView struct {
	Known     bool          `json:"known"`
	ItemCount int           `json:"item_count"`
	Total     string        `json:"total"`
	Lines     []lineView    `json:"lines"`
	Pending   []pendingView `json:"pending"`
	Version   uint64        `json:"version"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

func newCartView(state cart.State) cartView {
	view := cartView{
		Known:     state.Snapshot != nil,
		ItemCount: state.ItemCount(),
		Lines:     []lineView{},
		Pending:   []pendingView{},
		Version:   state.Version,
	}
	if !state.UpdatedAt.IsZero() {
		updated := state.UpdatedAt
		view.UpdatedAt = &updated
	}
	if s := state.Snapshot; s != nil {
		view.Total = s.Total().Format()
		for _, l := range s.Lines {
			view.Lines = append(view.Lines, lineView{
				Line:      l.LineIndex,
				VariantID: l.VariantID,
				Quantity:  l.Quantity,
				Title:     l.Title,
				LinePrice: domain.Money{AmountMinor: l.LinePriceMinor, Currency: s.Currency}.Format(),
			})
		}
	}
	for _, p := range state.Pending {
		view.Pending = append(view.Pending, pendingView{
			Target:            p.Target.String(),
			Kind:              string(p.Kind),
			RequestedQuantity: p.RequestedQuantity,
		})
	}
	return view
}

type variantView struct {
	Chosen       []string          `json:"chosen"`
	VariantID    *domain.VariantID `json:"variant_id,omitempty"`
	Title        string            `json:"title,omitempty"`
	Unavailable  bool              `json:"unavailable"`
	CanAddToCart bool              `json:"can_add_to_cart"`
	Price        string            `json:"price,omitempty"`
	MediaID      *int64            `json:"media_id,omitempty"`
	URL          string            `json:"url"`
}

func newVariantView(chosen []string, view variant.View, base string) variantView {
	out := variantView{
		Chosen:       chosen,
		Unavailable:  view.Unavailable,
		CanAddToCart: view.CanAddToCart,
		Price:        view.Price,
		MediaID:      view.MediaID,
		URL:          view.URL(base),
	}
	if view.Variant != nil {
		id := view.Variant.ID
		out.VariantID = &id
		out.Title = view.Variant.Title
	}
	return out
}
