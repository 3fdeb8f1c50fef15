package drawer

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Body: типизированное содержимое панели корзины.
type Body struct {
	// Known равен false, пока корзина неизвестна.
	Known     bool       `json:"known"`
	ItemCount int        `json:"item_count"`
	Total     string     `json:"total"`
	Empty     bool       `json:"empty"`
	Lines     []LineView `json:"lines"`
}

// LineView: строка корзины в панели.
type LineView struct {
	Index     int              `json:"line"`
	VariantID domain.VariantID `json:"variant_id"`
	Title     string           `json:"title,omitempty"`
	Quantity  int              `json:"quantity"`
	LinePrice string           `json:"line_price"`
	// Pending: для строки выполняется изменение количества.
	Pending bool `json:"pending"`
}

// RenderBody строит содержимое панели из снимка. nil отображается как пустая корзина.
func RenderBody(snapshot *domain.CartSnapshot) Body {
	if snapshot == nil {
		return Body{Empty: true, Total: domain.Money{}.Format()}
	}
	body := Body{
		Known:     true,
		ItemCount: snapshot.ItemCount,
		Total:     snapshot.Total().Format(),
		Empty:     len(snapshot.Lines) == 0,
		Lines:     make([]LineView, 0, len(snapshot.Lines)),
	}
	for _, line := range snapshot.Lines {
		body.Lines = append(body.Lines, LineView{
			Index:     line.LineIndex,
			VariantID: line.VariantID,
			Title:     line.Title,
			Quantity:  line.Quantity,
			LinePrice: domain.Money{AmountMinor: line.LinePriceMinor, Currency: snapshot.Currency}.Format(),
		})
	}
	return body
}

func (b *Body) markPending(pending []domain.PendingMutation) {
	for _, p := range pending {
		if p.Target.Kind != domain.TargetLine {
			continue
		}
		for i := range b.Lines {
			if int64(b.Lines[i].Index) == p.Target.ID {
				b.Lines[i].Pending = true
			}
		}
	}
}

var fragmentTemplate = template.Must(template.New("drawer").Parse(
	`<div class="cart-drawer__body" data-cart-drawer-body data-item-count="{{.ItemCount}}"{{if not .Known}} data-unknown{{end}}>` +
		`{{range .Lines}}<div class="cart-drawer__line" data-line="{{.Index}}" data-variant-id="{{.VariantID}}" data-quantity="{{.Quantity}}"{{if .Pending}} data-pending{{end}}>` +
		`<span class="cart-drawer__title">{{.Title}}</span><span class="cart-drawer__price">{{.LinePrice}}</span></div>{{end}}` +
		`{{if .Empty}}<p class="cart-drawer__empty">Your cart is empty</p>{{end}}` +
		`<div class="cart-drawer__total">{{.Total}}</div>` +
		`</div>`))

// WriteFragment пишет HTML-фрагмент панели.
func WriteFragment(w io.Writer, body Body) error {
	if err := fragmentTemplate.Execute(w, body); err != nil {
		return fmt.Errorf("render drawer fragment: %w", err)
	}
	return nil
}

// ErrFragmentNotFound: в документе нет тела панели.
var ErrFragmentNotFound = errors.New("cart drawer body not found")

// ParseFragment извлекает тело панели (data-cart-drawer-body) из HTML-документа.
// Остальная разметка игнорируется.
func ParseFragment(r io.Reader) (Body, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Body{}, fmt.Errorf("parse drawer fragment: %w", err)
	}
	root := find(doc, func(n *html.Node) bool {
		_, ok := attr(n, "data-cart-drawer-body")
		return ok
	})
	if root == nil {
		return Body{}, ErrFragmentNotFound
	}

	body := Body{Known: true}
	if _, unknown := attr(root, "data-unknown"); unknown {
		body.Known = false
	}
	if body.ItemCount, err = intAttr(root, "data-item-count"); err != nil {
		return Body{}, err
	}

	for n := range root.Descendants() {
		switch {
		case hasClass(n, "cart-drawer__line"):
			line, err := parseLine(n)
			if err != nil {
				return Body{}, err
			}
			body.Lines = append(body.Lines, line)
		case hasClass(n, "cart-drawer__empty"):
			body.Empty = true
		case hasClass(n, "cart-drawer__total"):
			body.Total = text(n)
		}
	}
	return body, nil
}

func parseLine(n *html.Node) (LineView, error) {
	index, err := intAttr(n, "data-line")
	if err != nil {
		return LineView{}, err
	}
	quantity, err := intAttr(n, "data-quantity")
	if err != nil {
		return LineView{}, err
	}
	rawID, _ := attr(n, "data-variant-id")
	variantID, err := domain.ParseVariantID(rawID)
	if err != nil {
		return LineView{}, fmt.Errorf("line %d: %w", index, err)
	}
	line := LineView{Index: index, VariantID: variantID, Quantity: quantity}
	_, line.Pending = attr(n, "data-pending")
	if title := find(n, func(c *html.Node) bool { return hasClass(c, "cart-drawer__title") }); title != nil {
		line.Title = text(title)
	}
	if price := find(n, func(c *html.Node) bool { return hasClass(c, "cart-drawer__price") }); price != nil {
		line.LinePrice = text(price)
	}
	return line, nil
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for d := range n.Descendants() {
		if match(d) {
			return d
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func intAttr(n *html.Node, key string) (int, error) {
	raw, ok := attr(n, key)
	if !ok {
		return 0, fmt.Errorf("attribute %s is missing", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", key, err)
	}
	return v, nil
}

func hasClass(n *html.Node, class string) bool {
	classes, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}
