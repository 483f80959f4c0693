package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Narrative providers.
const (
	ProviderChat    = "chat"
	ProviderGemini  = "gemini"
	ProviderOffline = "offline"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration
	RateLimitRPS    int

	// Simulation coordination.
	DebounceDelay           time.Duration
	OfflineReplyDelay       time.Duration
	HeadlineRefreshInterval time.Duration
	Projection              domain.ProjectionParams

	// Narrative service configuration.
	NarrativeProvider string
	NarrativeTimeout  time.Duration
	ChatAPIURL        string
	ChatAPIKey        string
	ChatModel         string
	GeminiAPIKey      string
	GeminiModel       string

	// Globe tileset provider token, handed to the browser.
	CesiumIonToken string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Scene event publishing.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaSceneTopic string

	DBPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	debounce, err := parseDuration("DEBOUNCE_DELAY", "600ms")
	if err != nil {
		return nil, err
	}
	offlineDelay, err := parseDuration("OFFLINE_REPLY_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	headlineInterval, err := parseDuration("HEADLINE_REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	narrativeTimeout, err := parseDuration("NARRATIVE_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	projection, err := parseProjection()
	if err != nil {
		return nil, err
	}

	rps, err := parsePositiveInt("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,
		RateLimitRPS:    rps,

		DebounceDelay:           debounce,
		OfflineReplyDelay:       offlineDelay,
		HeadlineRefreshInterval: headlineInterval,
		Projection:              projection,

		NarrativeTimeout: narrativeTimeout,
		ChatAPIURL:       sharedcfg.EnvOrDefault("CHAT_API_URL", "https://api.openai.com/v1/chat/completions"),
		ChatAPIKey:       os.Getenv("CHAT_API_KEY"),
		ChatModel:        sharedcfg.EnvOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      sharedcfg.EnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),

		CesiumIonToken: os.Getenv("CESIUM_ION_TOKEN"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSceneTopic: sharedcfg.EnvOrDefault("KAFKA_SCENE_TOPIC", "flood-scene-updates"),

		DBPath: sharedcfg.EnvOrDefault("DB_PATH", "./data/flood-atlas.db"),
	}
	cfg.NarrativeProvider = resolveProvider(os.Getenv("NARRATIVE_PROVIDER"), cfg.ChatAPIKey, cfg.GeminiAPIKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.NarrativeProvider {
	case ProviderChat, ProviderGemini, ProviderOffline:
	default:
		return fmt.Errorf("invalid NARRATIVE_PROVIDER: %q", c.NarrativeProvider)
	}
	if c.DebounceDelay <= 0 {
		return errors.New("DEBOUNCE_DELAY must be positive")
	}
	if c.NarrativeTimeout <= 0 {
		return errors.New("NARRATIVE_TIMEOUT must be positive")
	}
	if c.MapboxTimeout <= 0 {
		return errors.New("invalid MAPBOX_TIMEOUT")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaSceneTopic == "" {
		return errors.New("KAFKA_SCENE_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

// resolveProvider honors an explicit choice, otherwise picks the first backend
// with a credential.
func resolveProvider(explicit, chatKey, geminiKey string) string {
	if explicit != "" {
		return explicit
	}
	switch {
	case chatKey != "":
		return ProviderChat
	case geminiKey != "":
		return ProviderGemini
	default:
		return ProviderOffline
	}
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseProjection() (domain.ProjectionParams, error) {
	p := domain.DefaultProjectionParams()
	fields := []struct {
		key string
		dst *float64
	}{
		{"OVERRIDE_TOLERANCE", &p.OverrideTolerance},
		{"SEAWALL_HEIGHT", &p.SeawallHeight},
		{"STORM_SURGE_PER_CATEGORY", &p.StormPerCategory},
		{"STORM_CATEGORY3_SURGE", &p.Category3Surge},
	}
	for _, f := range fields {
		s := os.Getenv(f.key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return p, fmt.Errorf("invalid %s: must be a non-negative number", f.key)
		}
		*f.dst = v
	}
	return p, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
