package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string `validate:"required"`

	ForecastAPIKey     string
	ForecastAPIURL     string `validate:"omitempty,url"`
	ForecastAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend  string        `validate:"oneof=in_memory memcached"`
	CacheCapacity int           `validate:"min=1"`
	CacheTTL      time.Duration `validate:"min=1"`
	CacheSweep    time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	// Outbound ceilings toward the forecast upstream.
	OutboundRateLimit  int           `validate:"min=1"`
	OutboundRateWindow time.Duration `validate:"min=1"`
	DailyQuota         int           `validate:"min=0"`

	// Inbound HTTP throttle.
	RateLimitRPS   int `validate:"min=1"`
	RateLimitBurst int `validate:"min=1"`

	HorizonHours int `validate:"min=1,max=24"`

	CalibrationRegionsPath string

	BatchInterval  time.Duration
	BatchPacing    time.Duration
	EnableBatch    bool
	CoalesceMisses bool

	ShutdownTimeout time.Duration

	Spots []SpotConfig `validate:"dive"`
}

// SpotConfig is one configured surf spot.
type SpotConfig struct {
	ID       string  `yaml:"id" validate:"required"`
	Name     string  `yaml:"name" validate:"required"`
	Region   string  `yaml:"region"`
	Lat      float64 `yaml:"lat" validate:"required"`
	Lon      float64 `yaml:"lon" validate:"required"`
	Priority bool    `yaml:"priority"`
}

// Spot converts to the domain model.
func (s SpotConfig) Spot() models.Spot {
	return models.Spot{
		ID:         s.ID,
		Name:       s.Name,
		Region:     s.Region,
		Coordinate: models.GeoCoordinate{Lat: s.Lat, Lon: s.Lon},
	}
}

// PriorityIDs returns the IDs of spots flagged as priority, in config order.
func (c *Config) PriorityIDs() []string {
	var ids []string
	for _, s := range c.Spots {
		if s.Priority {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// SpotList returns all configured spots as domain models.
func (c *Config) SpotList() []models.Spot {
	spots := make([]models.Spot, len(c.Spots))
	for i, s := range c.Spots {
		spots[i] = s.Spot()
	}
	return spots
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	ForecastAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"forecast_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Capacity  int    `yaml:"capacity"`
		TTL       string `yaml:"ttl"`
		Sweep     string `yaml:"sweep_interval"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Upstream struct {
		RateLimit    int    `yaml:"rate_limit"`
		RateWindow   string `yaml:"rate_window"`
		DailyQuota   *int   `yaml:"daily_quota"`
		HorizonHours int    `yaml:"horizon_hours"`
	} `yaml:"upstream"`

	Reliability struct {
		RateLimitRPS   int  `yaml:"rate_limit_rps"`
		RateLimitBurst int  `yaml:"rate_limit_burst"`
		CoalesceMisses bool `yaml:"coalesce_misses"`
	} `yaml:"reliability"`

	Calibration struct {
		RegionsPath string `yaml:"regions_path"`
	} `yaml:"calibration"`

	Batch struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
		Pacing   string `yaml:"pacing"`
	} `yaml:"batch"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Spots []SpotConfig `yaml:"spots"`
}

type secretsFile struct {
	ForecastAPIKey string `yaml:"forecast_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml, with env overrides layered on top. A .env file in the
// working directory is loaded first when present. The API key comes from
// FORECAST_API_KEY env or the secrets file; an empty key is allowed and puts
// the service in synthetic-only mode. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ForecastAPIKey = os.Getenv("FORECAST_API_KEY")
	if cfg.ForecastAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.ForecastAPIKey = sec.ForecastAPIKey
		}
	}

	cfg.ForecastAPIURL = fc.ForecastAPI.URL
	if cfg.ForecastAPIURL == "" {
		cfg.ForecastAPIURL = "https://api.windy.com/api/point-forecast/v2"
	}
	cfg.ForecastAPITimeout = parseDuration(fc.ForecastAPI.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheCapacity = fc.Cache.Capacity
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 100
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheSweep = parseDurationOrZero(fc.Cache.Sweep, 5*time.Minute)

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.OutboundRateLimit = fc.Upstream.RateLimit
	if cfg.OutboundRateLimit <= 0 {
		cfg.OutboundRateLimit = 60
	}
	cfg.OutboundRateWindow = parseDuration(fc.Upstream.RateWindow, time.Minute)
	cfg.DailyQuota = 25
	if fc.Upstream.DailyQuota != nil && *fc.Upstream.DailyQuota >= 0 {
		cfg.DailyQuota = *fc.Upstream.DailyQuota
	}
	cfg.HorizonHours = fc.Upstream.HorizonHours
	if cfg.HorizonHours <= 0 || cfg.HorizonHours > 24 {
		cfg.HorizonHours = 24
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CoalesceMisses = fc.Reliability.CoalesceMisses

	cfg.CalibrationRegionsPath = fc.Calibration.RegionsPath

	cfg.EnableBatch = true
	if fc.Batch.Enabled != nil {
		cfg.EnableBatch = *fc.Batch.Enabled
	}
	cfg.BatchInterval = parseDuration(fc.Batch.Interval, time.Hour)
	cfg.BatchPacing = parseDuration(fc.Batch.Pacing, time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.Spots = fc.Spots

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero and negative values pass through; a zero sweep
// interval disables the background sweep.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate runs struct validation plus the cross-field checks tags cannot
// express.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if cfg.RequestTimeout <= cfg.ForecastAPITimeout {
		cfg.RequestTimeout = cfg.ForecastAPITimeout + time.Second
	}
	seen := make(map[string]struct{}, len(cfg.Spots))
	for _, s := range cfg.Spots {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate spot id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if !(models.GeoCoordinate{Lat: s.Lat, Lon: s.Lon}).Valid() {
			return fmt.Errorf("spot %q outside supported region (lat=%v lon=%v)", s.ID, s.Lat, s.Lon)
		}
	}
	return nil
}
