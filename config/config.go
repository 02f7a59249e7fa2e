package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del pipeline.
type Config struct {
	Features FeaturesConfig `yaml:"features"`
	Health   HealthConfig   `yaml:"health"`
	Model    ModelConfig    `yaml:"model"`
	Intent   IntentConfig   `yaml:"intent"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Sim      SimConfig      `yaml:"sim"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// FeaturesConfig son las ventanas del feature engine, en milisegundos.
type FeaturesConfig struct {
	AnchorMs   int64 `yaml:"anchor_ms"`
	EmaFastMs  int64 `yaml:"ema_fast_ms"`
	EmaSlowMs  int64 `yaml:"ema_slow_ms"`
	VolMs      int64 `yaml:"vol_ms"`
	IntervalMs int64 `yaml:"interval_ms"`
}

// HealthConfig son los umbrales de frescura de la máquina de estados.
type HealthConfig struct {
	MaxLatencyMs int64 `yaml:"max_latency_ms"`
	MaxStaleMs   int64 `yaml:"max_stale_ms"`
}

// ModelConfig son los parámetros del modelo de dislocación.
type ModelConfig struct {
	// Betas del modelo sigmoide, en orden [intercepto, x1, emaDiff, vol].
	// Los que falten se tratan como 0.
	Betas           []float64 `yaml:"betas"`
	AllowZeroBeta   bool      `yaml:"allow_zero_beta"`
	FeaturesVersion string    `yaml:"features_version"`
	BetaVersion     string    `yaml:"beta_version"`
}

// IntentConfig son los parámetros del intent manager.
type IntentConfig struct {
	DeltaThreshold       float64 `yaml:"delta_threshold"`
	InventoryCap         float64 `yaml:"inventory_cap"`
	OrderSize            float64 `yaml:"order_size"`
	UnwindStartFrac      float64 `yaml:"unwind_start_frac"`
	UnwindAggressiveFrac float64 `yaml:"unwind_aggressive_frac"`
	UnwindMinEdgeTicks   int     `yaml:"unwind_min_edge_ticks"`
	UnwindCooldownMs     int64   `yaml:"unwind_cooldown_ms"`
	TickSize             float64 `yaml:"tick_size"`
}

// FeedsConfig configura los feeds en vivo y el catálogo de mercados.
type FeedsConfig struct {
	CoinbaseURL         string `yaml:"coinbase_url"`
	SpotProductID       string `yaml:"spot_product_id"`
	PolymarketFeedURL   string `yaml:"polymarket_feed_url"`
	GammaBase           string `yaml:"gamma_base"`
	CatalogAsset        string `yaml:"catalog_asset"`
	CatalogWindowsAhead int    `yaml:"catalog_windows_ahead"`
	CatalogRefreshSecs  int    `yaml:"catalog_refresh_seconds"`
	MaxSpotStaleMs      int64  `yaml:"max_spot_stale_ms"`
	BestBookStaleMs     int64  `yaml:"best_book_stale_ms"`
}

// SimConfig configura la ejecución simulada del backtest.
type SimConfig struct {
	LatencyMinMs int64   `yaml:"latency_min_ms"`
	LatencyMaxMs int64   `yaml:"latency_max_ms"`
	FailProb     float64 `yaml:"fail_prob"`
	FeeBps       float64 `yaml:"fee_bps"`
	Seed         int64   `yaml:"seed"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Las variables de entorno sobreescriben el YAML key a key.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CatalogRefresh devuelve el intervalo de refresco del catálogo.
func (c *Config) CatalogRefresh() time.Duration {
	return time.Duration(c.Feeds.CatalogRefreshSecs) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	envInt64(&cfg.Features.AnchorMs, "FEATURE_ANCHOR_MS")
	envInt64(&cfg.Features.EmaFastMs, "FEATURE_EMA_FAST_MS")
	envInt64(&cfg.Features.EmaSlowMs, "FEATURE_EMA_SLOW_MS")
	envInt64(&cfg.Features.VolMs, "FEATURE_VOL_MS")
	envInt64(&cfg.Features.IntervalMs, "FEATURE_INTERVAL_MS")

	envInt64(&cfg.Health.MaxLatencyMs, "HEALTH_MAX_LATENCY_MS")
	envInt64(&cfg.Health.MaxStaleMs, "HEALTH_MAX_STALE_MS")

	if v := os.Getenv("BETA_PARAMS"); v != "" {
		cfg.Model.Betas = parseBetas(v)
	}
	envBool(&cfg.Model.AllowZeroBeta, "ALLOW_ZERO_BETA")

	envFloat(&cfg.Intent.DeltaThreshold, "INTENT_DELTA_THRESHOLD")
	envFloat(&cfg.Intent.InventoryCap, "INTENT_INVENTORY_CAP")
	envFloat(&cfg.Intent.OrderSize, "INTENT_ORDER_SIZE")
	envFloat(&cfg.Intent.UnwindStartFrac, "UNWIND_START_FRAC")
	envFloat(&cfg.Intent.UnwindAggressiveFrac, "UNWIND_AGGRESSIVE_FRAC")
	envInt(&cfg.Intent.UnwindMinEdgeTicks, "UNWIND_MIN_EDGE_TICKS")
	envInt64(&cfg.Intent.UnwindCooldownMs, "UNWIND_COOLDOWN_MS")
	envFloat(&cfg.Intent.TickSize, "UNWIND_TICK_SIZE")

	envString(&cfg.Feeds.SpotProductID, "SPOT_PRODUCT_ID")
	envString(&cfg.Feeds.CatalogAsset, "CATALOG_ASSET")
	envInt64(&cfg.Feeds.BestBookStaleMs, "BEST_BOOK_STALE_MS")

	envInt64(&cfg.Sim.Seed, "SIM_SEED")

	envString(&cfg.Storage.DSN, "STORAGE_DSN")
	envString(&cfg.Log.Level, "LOG_LEVEL")
	envString(&cfg.Log.Format, "LOG_FORMAT")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Features.AnchorMs <= 0 {
		cfg.Features.AnchorMs = 60_000
	}
	if cfg.Features.EmaFastMs <= 0 {
		cfg.Features.EmaFastMs = 10_000
	}
	if cfg.Features.EmaSlowMs <= 0 {
		cfg.Features.EmaSlowMs = 60_000
	}
	if cfg.Features.VolMs <= 0 {
		cfg.Features.VolMs = 120_000
	}
	if cfg.Features.IntervalMs <= 0 {
		cfg.Features.IntervalMs = 1_000
	}
	if cfg.Health.MaxLatencyMs <= 0 {
		cfg.Health.MaxLatencyMs = 1_500
	}
	if cfg.Health.MaxStaleMs <= 0 {
		cfg.Health.MaxStaleMs = 5_000
	}
	if cfg.Model.FeaturesVersion == "" {
		cfg.Model.FeaturesVersion = "v1"
	}
	if cfg.Model.BetaVersion == "" {
		cfg.Model.BetaVersion = "v0"
	}
	if cfg.Intent.DeltaThreshold <= 0 {
		cfg.Intent.DeltaThreshold = 0.02
	}
	if cfg.Intent.InventoryCap <= 0 {
		cfg.Intent.InventoryCap = 100
	}
	if cfg.Intent.OrderSize <= 0 {
		cfg.Intent.OrderSize = 5
	}
	if cfg.Intent.UnwindStartFrac <= 0 {
		cfg.Intent.UnwindStartFrac = 0.5
	}
	if cfg.Intent.UnwindAggressiveFrac <= 0 {
		cfg.Intent.UnwindAggressiveFrac = 0.8
	}
	if cfg.Intent.UnwindMinEdgeTicks <= 0 {
		cfg.Intent.UnwindMinEdgeTicks = 1
	}
	if cfg.Intent.UnwindCooldownMs <= 0 {
		cfg.Intent.UnwindCooldownMs = 5_000
	}
	if cfg.Intent.TickSize <= 0 {
		cfg.Intent.TickSize = 0.01
	}
	if cfg.Feeds.SpotProductID == "" {
		cfg.Feeds.SpotProductID = "BTC-USD"
	}
	if cfg.Feeds.CatalogAsset == "" {
		cfg.Feeds.CatalogAsset = "btc"
	}
	if cfg.Feeds.CatalogWindowsAhead <= 0 {
		cfg.Feeds.CatalogWindowsAhead = 4
	}
	if cfg.Feeds.CatalogRefreshSecs <= 0 {
		cfg.Feeds.CatalogRefreshSecs = 60
	}
	if cfg.Feeds.MaxSpotStaleMs <= 0 {
		cfg.Feeds.MaxSpotStaleMs = 5_000
	}
	if cfg.Feeds.BestBookStaleMs <= 0 {
		cfg.Feeds.BestBookStaleMs = 5_000
	}
	if cfg.Sim.LatencyMinMs <= 0 {
		cfg.Sim.LatencyMinMs = 200
	}
	if cfg.Sim.LatencyMaxMs <= 0 {
		cfg.Sim.LatencyMaxMs = 1_200
	}
	if cfg.Sim.FailProb <= 0 {
		cfg.Sim.FailProb = 0.01
	}
	if cfg.Sim.Seed == 0 {
		cfg.Sim.Seed = 1
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyflow.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// parseBetas parsea una lista separada por comas; entradas inválidas son 0.
func parseBetas(s string) []float64 {
	parts := strings.Split(s, ",")
	betas := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, _ := strconv.ParseFloat(strings.TrimSpace(p), 64)
		betas = append(betas, v)
	}
	return betas
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
