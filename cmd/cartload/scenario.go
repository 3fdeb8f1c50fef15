package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"
)

const (
	scenarioEndpoint = "scenario"
	codeTransport    = "transport"
	codeDiverged     = "diverged"
	maxBodyBytes     = 1 << 20
)

var errDiverged = errors.New("cart did not converge to a requested quantity")

// agentAPI выполняет запрос к HTTP API агента.
type agentAPI interface {
	Do(ctx context.Context, method, path string, body any) (status int, payload []byte, err error)
}

type httpAPI struct {
	base   string
	client *http.Client
}

func newHTTPAPI(base string, timeout time.Duration) *httpAPI {
	return &httpAPI{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (a *httpAPI) Do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return resp.StatusCode, payload, err
}

type cartLine struct {
	Line     int `json:"line"`
	Quantity int `json:"quantity"`
}

type cartView struct {
	Lines []cartLine `json:"lines"`
}

// call выполняет запрос с таймаутом и записывает результат в collector под именем endpoint.
func call(api agentAPI, cfg config, col *collector, endpoint, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	start := time.Now()
	status, payload, err := api.Do(ctx, method, path, body)
	code := codeTransport
	if err == nil {
		code = strconv.Itoa(status)
	}
	col.record(endpoint, time.Since(start), code)

	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return payload, fmt.Errorf("%s %s: status %d", method, path, status)
	}
	return payload, nil
}

func runScenario(api agentAPI, cfg config, index int, col *collector) error {
	start := time.Now()
	code := codeOK
	defer func() {
		col.record(scenarioEndpoint, time.Since(start), code)
	}()

	var err error
	switch cfg.mode {
	case modeAdd:
		err = runAdd(api, cfg, col)
	case modeChange:
		err = runChangeBurst(api, cfg, index, col)
	case modeDrawer:
		err = runDrawer(api, cfg, col)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.mode)
	}

	switch {
	case errors.Is(err, errDiverged):
		code = codeDiverged
		col.divergence()
	case err != nil:
		code = "failed"
	}
	return err
}

func runAdd(api agentAPI, cfg config, col *collector) error {
	body := map[string]any{"id": cfg.variant, "quantity": 1}
	if _, err := call(api, cfg, col, "POST /cart/add", http.MethodPost, "/cart/add", body); err != nil {
		return err
	}
	_, err := call(api, cfg, col, "GET /cart/count", http.MethodGet, "/cart/count", nil)
	return err
}

// runChangeBurst одновременно отправляет burst изменений одной строки и проверяет,
// что итоговое количество совпадает с одним из запрошенных.
func runChangeBurst(api agentAPI, cfg config, index int, col *collector) error {
	errs := make([]error, cfg.burst)
	var wg conc.WaitGroup
	for k := 0; k < cfg.burst; k++ {
		quantity := 1 + (index+k)%cfg.burst
		wg.Go(func() {
			body := map[string]int{"line": cfg.line, "quantity": quantity}
			_, errs[k] = call(api, cfg, col, "POST /cart/change", http.MethodPost, "/cart/change", body)
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	payload, err := call(api, cfg, col, "GET /cart", http.MethodGet, "/cart/", nil)
	if err != nil {
		return err
	}
	var view cartView
	if err := json.Unmarshal(payload, &view); err != nil {
		return fmt.Errorf("decode cart: %w", err)
	}
	for _, line := range view.Lines {
		if line.Line == cfg.line {
			if line.Quantity < 1 || line.Quantity > cfg.burst {
				return fmt.Errorf("%w: line %d has quantity %d", errDiverged, cfg.line, line.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: line %d is missing", errDiverged, cfg.line)
}

func runDrawer(api agentAPI, cfg config, col *collector) error {
	linePath := fmt.Sprintf("/drawer/lines/%d", cfg.line)
	steps := []struct {
		endpoint string
		path     string
	}{
		{"POST /drawer/open", "/drawer/open"},
		{"POST /drawer/lines/{line}/increase", linePath + "/increase"},
		{"POST /drawer/lines/{line}/decrease", linePath + "/decrease"},
		{"POST /drawer/close", "/drawer/close"},
	}
	for _, step := range steps {
		if _, err := call(api, cfg, col, step.endpoint, http.MethodPost, step.path, nil); err != nil {
			return err
		}
	}
	return nil
}
