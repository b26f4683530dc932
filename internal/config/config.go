package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath string

	// Feed endpoints. The threat URL is a template keyed by layer.
	OutlookFeedURL   string
	MesoFeedURL      string
	WatchFeedURL     string
	ThreatURLPattern string // %s is the layer: torn, wind, hail
	StormRiskURL     string

	FetchTimeout   time.Duration
	MaxBodyBytes   int64
	FetchPerMinute int // rate limit across all feeds

	// Monitored location.
	HomeLat       float64
	HomeLon       float64
	LocationLabel string
	Timezone      string

	// Quiet hours in local time, inclusive start, exclusive end.
	QuietStartHour int
	QuietEndHour   int

	RetentionDays int

	// Cadence interval table. Exact values are policy, not constants.
	Cadence CadenceTable

	// LowPowerMode stretches every cadence interval by Cadence.LowPower.
	LowPowerMode bool

	// Morning outlook evaluation time, HH:MM local.
	MorningCheck string

	// Telegram delivery (feature-flagged: disabled without a token).
	TelegramToken  string
	TelegramChatID int64

	// Mapbox reverse geocoding for the location label (feature-flagged).
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// CadenceTable maps risk state to the desired background refresh interval.
type CadenceTable struct {
	High     time.Duration // HIGH/MDT categorical risk or active watch
	Elevated time.Duration // SLGT/ENH risk
	MDNearby time.Duration // active mesoscale discussion over the home point
	Normal   time.Duration
	Quiet    time.Duration // quiet hours floor
	LowPower float64       // multiplier applied under low-power state

	// MinimumAdvance is the lead time a recomputed run must beat the
	// pending one by before the scheduler replaces it.
	MinimumAdvance time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cadence, err := loadCadence()
	if err != nil {
		return nil, err
	}

	homeLat, err := parseFloat("HOME_LAT", "35.47")
	if err != nil {
		return nil, err
	}
	homeLon, err := parseFloat("HOME_LON", "-97.52")
	if err != nil {
		return nil, err
	}

	chatID := int64(0)
	if s := os.Getenv("TELEGRAM_CHAT_ID"); s != "" {
		chatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("invalid TELEGRAM_CHAT_ID")
		}
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath: envOrDefault("DB_PATH", "severe-alerts.db"),

		OutlookFeedURL:   envOrDefault("OUTLOOK_FEED_URL", "https://www.spc.noaa.gov/products/spcacrss.xml"),
		MesoFeedURL:      envOrDefault("MESO_FEED_URL", "https://www.spc.noaa.gov/products/spcmdrss.xml"),
		WatchFeedURL:     envOrDefault("WATCH_FEED_URL", "https://www.spc.noaa.gov/products/spcwwrss.xml"),
		ThreatURLPattern: envOrDefault("THREAT_URL_PATTERN", "https://www.spc.noaa.gov/products/outlook/day1otlk_%s.lyr.geojson"),
		StormRiskURL:     envOrDefault("STORM_RISK_URL", "https://www.spc.noaa.gov/products/outlook/day1otlk_cat.lyr.geojson"),

		FetchTimeout:   fetchTimeout,
		MaxBodyBytes:   parseInt64("MAX_BODY_BYTES", 2<<20),
		FetchPerMinute: parseIntDefault("FETCH_PER_MINUTE", 30),

		HomeLat:       homeLat,
		HomeLon:       homeLon,
		LocationLabel: envOrDefault("LOCATION_LABEL", ""),
		Timezone:      envOrDefault("TIMEZONE", "America/Chicago"),

		QuietStartHour: parseIntDefault("QUIET_START_HOUR", 22),
		QuietEndHour:   parseIntDefault("QUIET_END_HOUR", 7),

		RetentionDays: parseIntDefault("RETENTION_DAYS", 7),

		Cadence:      cadence,
		LowPowerMode: os.Getenv("LOW_POWER_MODE") == "true",
		MorningCheck: envOrDefault("MORNING_CHECK", "07:30"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: chatID,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseIntDefault("MAPBOX_CACHE_SIZE", 1000),
	}

	if cfg.HomeLat < -90 || cfg.HomeLat > 90 || cfg.HomeLon < -180 || cfg.HomeLon > 180 {
		return nil, errors.New("HOME_LAT/HOME_LON out of range")
	}
	if cfg.QuietStartHour < 0 || cfg.QuietStartHour > 23 || cfg.QuietEndHour < 0 || cfg.QuietEndHour > 23 {
		return nil, errors.New("quiet hours must be 0-23")
	}
	if cfg.RetentionDays <= 0 {
		return nil, errors.New("RETENTION_DAYS must be positive")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if _, _, err := cfg.MorningCheckTime(); err != nil {
		return nil, err
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, errors.New("TELEGRAM_TOKEN is set but TELEGRAM_CHAT_ID is not")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// MorningCheckTime parses MorningCheck into local hour and minute.
func (c *Config) MorningCheckTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.MorningCheck)
	if err != nil {
		return 0, 0, errors.New("invalid MORNING_CHECK, want HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}

func loadCadence() (CadenceTable, error) {
	var (
		t   CadenceTable
		err error
	)
	if t.High, err = parseDuration("CADENCE_HIGH", "30m"); err != nil {
		return t, err
	}
	if t.Elevated, err = parseDuration("CADENCE_ELEVATED", "1h"); err != nil {
		return t, err
	}
	if t.MDNearby, err = parseDuration("CADENCE_MD_NEARBY", "20m"); err != nil {
		return t, err
	}
	if t.Normal, err = parseDuration("CADENCE_NORMAL", "3h"); err != nil {
		return t, err
	}
	if t.Quiet, err = parseDuration("CADENCE_QUIET", "6h"); err != nil {
		return t, err
	}
	if t.MinimumAdvance, err = parseDuration("CADENCE_MIN_ADVANCE", "120s"); err != nil {
		return t, err
	}
	t.LowPower = 2.0
	if s := os.Getenv("CADENCE_LOW_POWER_FACTOR"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 1 {
			return t, errors.New("invalid CADENCE_LOW_POWER_FACTOR")
		}
		t.LowPower = f
	}
	return t, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseIntDefault(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}
