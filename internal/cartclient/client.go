// Package cartclient реализует удалённую корзину поверх JSON-эндпоинтов витрины
// (/cart.js, /cart/add.js, /cart/change.js).
package cartclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	OpFetchCart  = "fetch_cart"
	OpAddItem    = "add_item"
	OpChangeLine = "change_line"

	pathCart   = "/cart.js"
	pathAdd    = "/cart/add.js"
	pathChange = "/cart/change.js"

	maxResponseBytes = 4 << 20

	defaultTimeout = 10 * time.Second
)

// Recorder принимает длительность и результат удалённых вызовов.
type Recorder interface {
	ObserveRemoteCall(op, result string, duration time.Duration)
}

// Client: HTTP-реализация domain.CartClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[response]
	retry      RetryConfig
	recorder   Recorder
	logger     *log.Entry
}

type response struct {
	status int
	body   []byte
}

// Options задаёт параметры клиента.
type Options struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Retry      RetryConfig
	Breaker    BreakerConfig
	Recorder   Recorder
	Logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Options)

// WithHTTPClient задаёт http.Client (таймауты, транспорт).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = httpClient
	}
}

// WithRateLimit ограничивает частоту исходящих запросов.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(opts *Options) {
		opts.Limiter = limiter
	}
}

// WithRetry задаёт политику повторов для FetchCart.
func WithRetry(cfg RetryConfig) Option {
	return func(opts *Options) {
		opts.Retry = cfg
	}
}

// WithBreaker задаёт параметры circuit breaker.
func WithBreaker(cfg BreakerConfig) Option {
	return func(opts *Options) {
		opts.Breaker = cfg
	}
}

// WithRecorder подключает метрики удалённых вызовов.
func WithRecorder(recorder Recorder) Option {
	return func(opts *Options) {
		opts.Recorder = recorder
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// New создаёт клиента для витрины с адресом baseURL.
func New(baseURL string, options ...Option) *Client {
	opts := Options{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultBreakerConfig(),
	}
	for _, option := range options {
		option(&opts)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-client")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    opts.Limiter,
		breaker:    newBreaker(opts.Breaker, logger),
		retry:      opts.Retry,
		recorder:   opts.Recorder,
		logger:     logger,
	}
}

// FetchCart загружает текущую корзину. Временные сбои повторяются с backoff.
func (c *Client) FetchCart(ctx context.Context) (domain.CartSnapshot, error) {
	return retryFetch(ctx, c.retry, c.logger, func() (domain.CartSnapshot, error) {
		resp, err := c.call(ctx, OpFetchCart, http.MethodGet, pathCart, nil)
		if err != nil {
			return domain.CartSnapshot{}, err
		}
		return decodeSnapshot(OpFetchCart, resp)
	})
}

type addRequest struct {
	ID       domain.VariantID `json:"id"`
	Quantity int              `json:"quantity"`
}

// AddItem добавляет вариант в корзину. Если backend вернул только добавленную
// позицию, корзина перечитывается тем же вызовом.
func (c *Client) AddItem(ctx context.Context, variantID domain.VariantID, quantity int) (domain.CartSnapshot, error) {
	if variantID <= 0 {
		return domain.CartSnapshot{}, argumentError(OpAddItem, domain.ErrVariantRequired)
	}
	if quantity < 1 {
		return domain.CartSnapshot{}, argumentError(OpAddItem, domain.ErrAddQuantityInvalid)
	}

	resp, err := c.call(ctx, OpAddItem, http.MethodPost, pathAdd, addRequest{ID: variantID, Quantity: quantity})
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	if domain.LooksLikeCart(resp.body) {
		return decodeSnapshot(OpAddItem, resp)
	}

	c.logger.WithField("variant_id", variantID).Debug("add response is a line item, refetching cart")
	snapshot, err := c.FetchCart(ctx)
	if err != nil {
		var cartErr *domain.CartError
		if errors.As(err, &cartErr) {
			relabeled := *cartErr
			relabeled.Op = OpAddItem
			return domain.CartSnapshot{}, &relabeled
		}
		return domain.CartSnapshot{}, err
	}
	return snapshot, nil
}

type changeRequest struct {
	Line     int `json:"line"`
	Quantity int `json:"quantity"`
}

// SetLineQuantity задаёт количество в строке line (нумерация с 1).
func (c *Client) SetLineQuantity(ctx context.Context, line int, quantity int) (domain.CartSnapshot, error) {
	if line < 1 {
		return domain.CartSnapshot{}, argumentError(OpChangeLine, domain.ErrLineIndexInvalid)
	}
	if quantity < 0 {
		return domain.CartSnapshot{}, argumentError(OpChangeLine, domain.ErrLineQuantityInvalid)
	}

	resp, err := c.call(ctx, OpChangeLine, http.MethodPost, pathChange, changeRequest{Line: line, Quantity: quantity})
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	return decodeSnapshot(OpChangeLine, resp)
}

// BreakerState возвращает состояние circuit breaker (closed/half-open/open).
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// call выполняет запрос через rate limiter и circuit breaker и классифицирует ответ.
func (c *Client) call(ctx context.Context, op, method, path string, payload any) (response, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (response, error) {
		return c.do(ctx, op, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewTransportError(op, err)
		}
	}
	c.observe(op, err, time.Since(start))
	return resp, err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, domain.NewTransportError(op, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return response{}, domain.NewBackendError(op, 0, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, domain.NewTransportError(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, domain.NewTransportError(op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return response{}, domain.NewTransportError(op, fmt.Errorf("read body: %w", err))
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return response{status: httpResp.StatusCode, body: raw}, nil
	}
	return response{}, classifyFailure(op, httpResp.StatusCode, raw)
}

type errorBody struct {
	Status      json.RawMessage `json:"status"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
}

// classifyFailure превращает не-2xx ответ в ValidationError или BackendError.
func classifyFailure(op string, status int, raw []byte) error {
	var body errorBody
	decodeErr := json.Unmarshal(raw, &body)

	if status >= 400 && status < 500 && decodeErr == nil {
		description := strings.TrimSpace(body.Description)
		if description == "" {
			description = strings.TrimSpace(body.Message)
		}
		if description != "" {
			return domain.NewValidationError(op, status, description)
		}
	}
	return domain.NewBackendError(op, status, fmt.Errorf("unexpected status %d", status))
}

func decodeSnapshot(op string, resp response) (domain.CartSnapshot, error) {
	snapshot, err := domain.ParseSnapshot(resp.body)
	if err != nil {
		return domain.CartSnapshot{}, domain.NewBackendError(op, resp.status, err)
	}
	return snapshot, nil
}

func argumentError(op string, err error) error {
	return &domain.CartError{
		Kind:        domain.ErrorKindValidation,
		Op:          op,
		Description: err.Error(),
		Err:         err,
	}
}

func (c *Client) observe(op string, err error, duration time.Duration) {
	result := resultLabel(err)
	if c.recorder != nil {
		c.recorder.ObserveRemoteCall(op, result, duration)
	}
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"op":          op,
			"result":      result,
			"duration_ms": duration.Milliseconds(),
		}).Debug("cart call failed")
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return string(domain.ErrorKindValidation)
	case errors.Is(err, domain.ErrBackend):
		return string(domain.ErrorKindBackend)
	default:
		return string(domain.ErrorKindTransport)
	}
}

var _ domain.CartClient = (*Client)(nil)
