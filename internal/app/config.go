package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

const (
	envHTTPAddr            = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr         = "STOREFRONT_METRICS_ADDR"
	envShopURL             = "STOREFRONT_SHOP_URL"
	envRequestTimeout      = "STOREFRONT_REQUEST_TIMEOUT"
	envRateLimit           = "STOREFRONT_RATE_LIMIT"
	envDrawerFreshness     = "STOREFRONT_DRAWER_FRESHNESS"
	envNoticeTTL           = "STOREFRONT_NOTICE_TTL"
	envRefreshInterval     = "STOREFRONT_REFRESH_INTERVAL"
	envCatalogDir          = "STOREFRONT_CATALOG_DIR"
	envPreferencesDriver   = "STOREFRONT_PREFERENCES_DRIVER"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envEventQueueSize      = "STOREFRONT_EVENT_QUEUE_SIZE"
	envEventMaxAttempts    = "STOREFRONT_EVENT_MAX_ATTEMPTS"
)

// Config описывает настройки запуска агента.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// ShopURL: адрес витрины с эндпоинтами /cart.js, /cart/add.js, /cart/change.js.
	ShopURL        string
	RequestTimeout time.Duration
	// RateLimit: запросов в секунду к витрине; 0 отключает ограничение.
	RateLimit float64

	DrawerFreshness time.Duration
	NoticeTTL       time.Duration
	CatalogDir      string
	// RefreshInterval: период фонового обновления корзины; 0 отключает воркер.
	RefreshInterval time.Duration

	PreferencesDriver   string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers: список брокеров через запятую; пусто, события не публикуются.
	KafkaBrokers     string
	EventQueueSize   int
	EventMaxAttempts int
}

// DefaultConfig возвращает настройки для локальной разработки темы.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		ShopURL:             "http://127.0.0.1:9292",
		RequestTimeout:      10 * time.Second,
		RateLimit:           10,
		DrawerFreshness:     30 * time.Second,
		NoticeTTL:           5 * time.Second,
		RefreshInterval:     time.Minute,
		PreferencesDriver:   StorageDriverMemory,
		PostgresAutoMigrate: true,
		EventQueueSize:      256,
		EventMaxAttempts:    3,
	}
}

// EnvLookup совпадает с сигнатурой os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv читает конфигурацию из окружения процесса.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfig(os.LookupEnv)
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
// Все некорректные значения собираются в одну ошибку.
func LoadConfig(lookup EnvLookup) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envShopURL, &cfg.ShopURL)
	str(envCatalogDir, &cfg.CatalogDir)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envKafkaBrokers, &cfg.KafkaBrokers)

	duration(envRequestTimeout, &cfg.RequestTimeout)
	duration(envDrawerFreshness, &cfg.DrawerFreshness)
	duration(envNoticeTTL, &cfg.NoticeTTL)

	if v, ok := lookup(envRefreshInterval); ok && strings.TrimSpace(v) != "" {
		d, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envRefreshInterval, err))
		} else {
			cfg.RefreshInterval = d
		}
	}

	positive := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	positive(envEventQueueSize, &cfg.EventQueueSize)
	positive(envEventMaxAttempts, &cfg.EventMaxAttempts)

	if v, ok := lookup(envRateLimit); ok && strings.TrimSpace(v) != "" {
		limit, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: invalid number %q", envRateLimit, v))
		case limit < 0:
			errs = append(errs, fmt.Errorf("%s: must be >= 0", envRateLimit))
		default:
			cfg.RateLimit = limit
		}
	}

	if v, ok := lookup(envPreferencesDriver); ok && strings.TrimSpace(v) != "" {
		driver := strings.ToLower(strings.TrimSpace(v))
		if driver != StorageDriverMemory && driver != StorageDriverPostgres {
			errs = append(errs, fmt.Errorf("%s: unsupported driver %q", envPreferencesDriver, v))
		} else {
			cfg.PreferencesDriver = driver
		}
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		autoMigrate, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envPostgresAutoMigrate, err))
		} else {
			cfg.PostgresAutoMigrate = autoMigrate
		}
	}

	if err := validateShopURL(cfg.ShopURL); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", envShopURL, err))
	}

	if len(errs) > 0 {
		return DefaultConfig(), errors.Join(errs...)
	}
	return cfg, nil
}

// KafkaBrokerList разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func validateShopURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http(s)", raw)
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s %s", value, rule)
	}
	return value, nil
}
