package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
)

func fixed(status Status, message string) Checker {
	return NewFuncChecker(string(status), func() (Status, string) { return status, message })
}

// Сводный статус: unhealthy важнее degraded, degraded важнее healthy.
// Degraded оставляет 200 и готовность: поверхности работают по последнему снимку.
func TestHandler_Aggregation(t *testing.T) {
	tests := []struct {
		name      string
		checkers  map[string]Checker
		want      Status
		wantCode  int
		wantReady int
	}{
		{
			name:      "no checkers",
			want:      StatusHealthy,
			wantCode:  http.StatusOK,
			wantReady: http.StatusOK,
		},
		{
			name: "cart loaded, breaker closed",
			checkers: map[string]Checker{
				"cart":         CartChecker(knownFlag(true)),
				"cart-backend": BreakerChecker(func() string { return "closed" }),
			},
			want:      StatusHealthy,
			wantCode:  http.StatusOK,
			wantReady: http.StatusOK,
		},
		{
			name: "cart not loaded yet",
			checkers: map[string]Checker{
				"cart":         CartChecker(knownFlag(false)),
				"cart-backend": BreakerChecker(func() string { return "closed" }),
			},
			want:      StatusDegraded,
			wantCode:  http.StatusOK,
			wantReady: http.StatusOK,
		},
		{
			name: "breaker open and postgres down",
			checkers: map[string]Checker{
				"cart-backend": BreakerChecker(func() string { return "open" }),
				"postgres":     NewSimpleChecker("postgres", func() error { return errors.New("connection refused") }),
			},
			want:      StatusUnhealthy,
			wantCode:  http.StatusServiceUnavailable,
			wantReady: http.StatusServiceUnavailable,
		},
		{
			name: "unhealthy registered before degraded",
			checkers: map[string]Checker{
				"a": fixed(StatusUnhealthy, "down"),
				"b": fixed(StatusDegraded, "slow"),
				"c": fixed(StatusHealthy, ""),
			},
			want:      StatusUnhealthy,
			wantCode:  http.StatusServiceUnavailable,
			wantReady: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.2.3")
			for name, checker := range tt.checkers {
				handler.RegisterChecker(name, checker)
			}

			if got := handler.Status(); got != tt.want {
				t.Fatalf("Status(): expected %s, got %s", tt.want, got)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tt.wantCode {
				t.Fatalf("healthz: expected %d, got %d", tt.wantCode, w.Code)
			}
			var response Response
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if response.Status != tt.want || response.Version != "v1.2.3" || len(response.Checks) != len(tt.checkers) {
				t.Fatalf("unexpected response: %+v", response)
			}

			w = httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tt.wantReady {
				t.Fatalf("readyz: expected %d, got %d", tt.wantReady, w.Code)
			}
		})
	}
}

func TestHandler_ReportsCheckMessages(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("cart", CartChecker(knownFlag(false)))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	check := response.Checks["cart"]
	if check.Name != "cart" || check.Status != StatusDegraded || check.Message != "cart snapshot is not loaded" {
		t.Fatalf("unexpected cart check: %+v", check)
	}
}

func TestHandler_RegisterReplacesChecker(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("cart", CartChecker(knownFlag(false)))
	handler.RegisterChecker("cart", CartChecker(knownFlag(true)))

	if got := handler.Status(); got != StatusHealthy {
		t.Fatalf("expected the later checker to win, got %s", got)
	}
}

func TestFuncChecker(t *testing.T) {
	calls := 0
	checker := NewFuncChecker("refresh", func() (Status, string) {
		calls++
		if calls > 1 {
			return StatusDegraded, "refresh overdue"
		}
		return StatusHealthy, ""
	})

	if check := checker.Check(); check.Status != StatusHealthy || check.Name != "refresh" {
		t.Fatalf("unexpected first check: %+v", check)
	}
	check := checker.Check()
	if check.Status != StatusDegraded || check.Message != "refresh overdue" {
		t.Fatalf("status must be evaluated on every check: %+v", check)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", w.Code, w.Body.String())
	}
}
