package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/drawer"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
	"github.com/vladislavdragonenkov/storefront/internal/widget"
)

const maxBodyBytes = 64 << 10

type addItemRequest struct {
	ID       domain.VariantID `json:"id"`
	Quantity int              `json:"quantity"`
}

type changeLineRequest struct {
	Line     int `json:"line"`
	Quantity int `json:"quantity"`
}

type preferenceRequest struct {
	Value string `json:"value"`
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.NewDecoder(bytes.NewReader(body)).Decode(dst)
}

func (h *handler) getCart(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, newCartView(h.deps.Store.State()))
}

func (h *handler) getCount(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"count": h.deps.Badge.Count()})
}

func (h *handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.deps.Store.Add(r.Context(), req.ID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(h.deps.Store.State()))
}

func (h *handler) changeLine(w http.ResponseWriter, r *http.Request) {
	var req changeLineRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.deps.Store.SetQuantity(r.Context(), req.Line, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(h.deps.Store.State()))
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Refresh(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(h.deps.Store.State()))
}

type drawerView struct {
	Phase drawer.Phase `json:"phase"`
	Body  drawer.Body  `json:"body"`
}

func (h *handler) drawerView() drawerView {
	return drawerView{Phase: h.deps.Drawer.Phase(), Body: h.deps.Drawer.Body()}
}

func (h *handler) getDrawer(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.drawerView())
}

func (h *handler) getDrawerFragment(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := drawer.WriteFragment(&buf, h.deps.Drawer.Body()); err != nil {
		respondError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *handler) openDrawer(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Drawer.Open(r.Context()); err != nil {
		// Панель открыта и показывает последний известный снимок.
		h.logger.WithError(err).Warn("drawer opened without fresh cart")
	}
	respondJSON(w, http.StatusOK, h.drawerView())
}

func (h *handler) closeDrawer(w http.ResponseWriter, _ *http.Request) {
	h.deps.Drawer.Close()
	respondJSON(w, http.StatusOK, h.drawerView())
}

func lineParam(r *http.Request) (int, bool) {
	line, err := strconv.Atoi(chi.URLParam(r, "line"))
	return line, err == nil && line > 0
}

func (h *handler) adjustLine(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		line, ok := lineParam(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_line", "line must be a positive integer")
			return
		}
		if err := h.deps.Drawer.ChangeQuantity(r.Context(), line, delta); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, h.drawerView())
	}
}

func (h *handler) removeLine(w http.ResponseWriter, r *http.Request) {
	line, ok := lineParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_line", "line must be a positive integer")
		return
	}
	if err := h.deps.Drawer.RemoveLine(r.Context(), line); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.drawerView())
}

// selection строит выбор опций товара из ?option=..; без опций, вариант по умолчанию.
func (h *handler) selection(r *http.Request) (*variant.Selection, error) {
	catalog, err := h.deps.Catalogs.Get(chi.URLParam(r, "handle"))
	if err != nil {
		return nil, err
	}
	selection := variant.NewSelection(catalog)
	if options := r.URL.Query()["option"]; len(options) > 0 {
		if _, err := selection.Set(options); err != nil {
			return nil, err
		}
	}
	return selection, nil
}

func productURL(r *http.Request) string {
	return "/products/" + chi.URLParam(r, "handle")
}

func (h *handler) getVariant(w http.ResponseWriter, r *http.Request) {
	selection, err := h.selection(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newVariantView(selection.Chosen(), selection.View(), productURL(r)))
}

type productAddResponse struct {
	Variant variantView        `json:"variant"`
	Button  widget.ButtonState `json:"button"`
	Message string             `json:"message,omitempty"`
	Cart    cartView           `json:"cart"`
}

func (h *handler) addProduct(w http.ResponseWriter, r *http.Request) {
	selection, err := h.selection(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	button := widget.NewStateButton()
	form := widget.NewProductForm(h.deps.Store, h.deps.Drawer, button, h.logger.WithField("widget", "product-form"))
	defer form.Detach()

	form.ApplyView(selection.View())
	if q := r.URL.Query().Get("quantity"); q != "" {
		quantity, err := strconv.Atoi(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be an integer")
			return
		}
		form.SetQuantity(quantity)
	}

	submitErr := form.Submit(r.Context())
	response := productAddResponse{
		Variant: newVariantView(selection.Chosen(), selection.View(), productURL(r)),
		Button:  button.State(),
		Message: form.Message(),
		Cart:    newCartView(h.deps.Store.State()),
	}
	if submitErr != nil {
		respondDomainError(w, submitErr)
		return
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *handler) carouselCard(r *http.Request) (*carouselEntry, error) {
	id, err := domain.ParseVariantID(chi.URLParam(r, "variant"))
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.cards[id]
	if !ok {
		button := widget.NewStateButton()
		entry = &carouselEntry{
			card:   widget.NewCarouselCard(h.deps.Store, id, button, nil),
			button: button,
		}
		h.cards[id] = entry
	}
	return entry, nil
}

func (h *handler) getCarouselCard(w http.ResponseWriter, r *http.Request) {
	entry, err := h.carouselCard(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry.button.State())
}

func (h *handler) clickCarouselCard(w http.ResponseWriter, r *http.Request) {
	entry, err := h.carouselCard(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := entry.card.Click(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry.button.State())
}

func (h *handler) listPreferences(w http.ResponseWriter, r *http.Request) {
	values, err := h.deps.Preferences.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, values)
}

func (h *handler) getPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.deps.Preferences.Get(r.Context(), key)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (h *handler) putPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.deps.Preferences.Set(r.Context(), key, req.Value); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

func (h *handler) deletePreference(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Preferences.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listNotices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Notices.Active())
}

func (h *handler) dismissNotice(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Notices.Dismiss(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "not_found", "notice not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
