package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "forage.cfg.json"

// StoreConfig selects and sizes the two storage tiers.
type StoreConfig struct {
	Key            string       `json:"key" mapstructure:"key" validate:"required"`
	Primary        string       `json:"primary" mapstructure:"primary" validate:"oneof=sqlite postgres memory"`
	Fallback       string       `json:"fallback" mapstructure:"fallback" validate:"oneof=file memory none"`
	SQLite         SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	File           FileConfig   `json:"file" mapstructure:"file"`
	MemoryMaxBytes int64        `json:"memoryMaxBytes" mapstructure:"memoryMaxBytes" validate:"gte=0"`
}

// SQLiteConfig holds the embedded database settings.
// MaxPageCount caps the database file and acts as the storage quota; 0 means no cap.
type SQLiteConfig struct {
	Path         string `json:"path" mapstructure:"path"`
	MaxPageCount int    `json:"maxPageCount" mapstructure:"maxPageCount" validate:"gte=0"`
}

// FileConfig holds the file fallback settings.
type FileConfig struct {
	Dir      string `json:"dir" mapstructure:"dir"`
	MaxBytes int64  `json:"maxBytes" mapstructure:"maxBytes" validate:"gte=0"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// LocationConfig holds acquisition and retry settings.
type LocationConfig struct {
	HighAccuracy bool          `json:"highAccuracy" mapstructure:"highAccuracy"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxFixAge    time.Duration `json:"maxFixAge" mapstructure:"maxFixAge" validate:"gte=0"`
	MaxRetries   int           `json:"maxRetries" mapstructure:"maxRetries" validate:"gte=0,lte=10"`
	RetryDelay   time.Duration `json:"retryDelay" mapstructure:"retryDelay" validate:"gte=0"`
	TimeoutStep  time.Duration `json:"timeoutStep" mapstructure:"timeoutStep" validate:"gte=0"`
	MaxAgeStep   time.Duration `json:"maxAgeStep" mapstructure:"maxAgeStep" validate:"gte=0"`
}

// EngineConfig holds the recording thresholds.
type EngineConfig struct {
	EnterRadius     float64 `json:"enterRadius" mapstructure:"enterRadius" validate:"gt=0"`
	ExitRadius      float64 `json:"exitRadius" mapstructure:"exitRadius" validate:"gtfield=EnterRadius"`
	HeadingMinMove  float64 `json:"headingMinMove" mapstructure:"headingMinMove" validate:"gte=0"`
	DecimateCeiling int     `json:"decimateCeiling" mapstructure:"decimateCeiling" validate:"gte=2"`
	AutoSaveEvery   int     `json:"autoSaveEvery" mapstructure:"autoSaveEvery" validate:"gte=1"`
}

// GeocodeConfig holds reverse geocoder settings.
type GeocodeConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	BaseURL   string        `json:"baseUrl" mapstructure:"baseUrl" validate:"omitempty,url"`
	UserAgent string        `json:"userAgent" mapstructure:"userAgent"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// InfluxConfig holds the telemetry sink settings.
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Protocol  string `json:"protocol" mapstructure:"protocol" validate:"oneof=http https"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address" validate:"required_if=Enabled true"`
	Level   string `json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// LiveConfig holds the render-layer stream settings.
type LiveConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URL        string `json:"url" mapstructure:"url" validate:"omitempty,url"`
	SecretKey  string `json:"secretKey" mapstructure:"secretKey"`
	BufferSize int    `json:"bufferSize" mapstructure:"bufferSize" validate:"gte=1"`
}

// Config is the full typed configuration.
type Config struct {
	LogLevel string `validate:"oneof=debug info warn error"`
	LogsDir  string
	Store    StoreConfig
	DB       DBConfig
	Location LocationConfig
	Engine   EngineConfig
	Geocode  GeocodeConfig
	Influx   InfluxConfig
	Graylog  GraylogConfig
	OTel     OTelConfig
	Live     LiveConfig
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults sets the default values without reading a file.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./foragelogs")

	viper.SetDefault("store.key", "forage-state")
	viper.SetDefault("store.primary", "sqlite")
	viper.SetDefault("store.fallback", "file")
	viper.SetDefault("store.sqlite.path", "./forage.db")
	viper.SetDefault("store.sqlite.maxPageCount", 0)
	viper.SetDefault("store.file.dir", "./forage-fallback")
	viper.SetDefault("store.file.maxBytes", 5*1024*1024)
	viper.SetDefault("store.memoryMaxBytes", 0)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "forage")

	viper.SetDefault("location.highAccuracy", true)
	viper.SetDefault("location.timeout", "10s")
	viper.SetDefault("location.maxFixAge", "0s")
	viper.SetDefault("location.maxRetries", 3)
	viper.SetDefault("location.retryDelay", "1s")
	viper.SetDefault("location.timeoutStep", "5s")
	viper.SetDefault("location.maxAgeStep", "30s")

	viper.SetDefault("engine.enterRadius", 10.0)
	viper.SetDefault("engine.exitRadius", 15.0)
	viper.SetDefault("engine.headingMinMove", 2.0)
	viper.SetDefault("engine.decimateCeiling", 1000)
	viper.SetDefault("engine.autoSaveEvery", 1)

	viper.SetDefault("geocode.enabled", false)
	viper.SetDefault("geocode.baseUrl", "https://nominatim.openstreetmap.org")
	viper.SetDefault("geocode.userAgent", "forage-recorder")
	viper.SetDefault("geocode.timeout", "10s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "forage")
	viper.SetDefault("influx.bucket", "tracks")
	viper.SetDefault("influx.backupDir", "./foragelogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.level", "info")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "forage-recorder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("live.enabled", false)
	viper.SetDefault("live.url", "ws://localhost:5000/ws/track")
	viper.SetDefault("live.secretKey", "")
	viper.SetDefault("live.bufferSize", 256)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStoreConfig returns the storage tier configuration.
func GetStoreConfig() StoreConfig {
	return StoreConfig{
		Key:      viper.GetString("store.key"),
		Primary:  viper.GetString("store.primary"),
		Fallback: viper.GetString("store.fallback"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("store.sqlite.path"),
			MaxPageCount: viper.GetInt("store.sqlite.maxPageCount"),
		},
		File: FileConfig{
			Dir:      viper.GetString("store.file.dir"),
			MaxBytes: viper.GetInt64("store.file.maxBytes"),
		},
		MemoryMaxBytes: viper.GetInt64("store.memoryMaxBytes"),
	}
}

// GetDBConfig returns the Postgres connection configuration.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetLocationConfig returns the acquisition configuration.
func GetLocationConfig() LocationConfig {
	return LocationConfig{
		HighAccuracy: viper.GetBool("location.highAccuracy"),
		Timeout:      viper.GetDuration("location.timeout"),
		MaxFixAge:    viper.GetDuration("location.maxFixAge"),
		MaxRetries:   viper.GetInt("location.maxRetries"),
		RetryDelay:   viper.GetDuration("location.retryDelay"),
		TimeoutStep:  viper.GetDuration("location.timeoutStep"),
		MaxAgeStep:   viper.GetDuration("location.maxAgeStep"),
	}
}

// GetEngineConfig returns the recording thresholds.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		EnterRadius:     viper.GetFloat64("engine.enterRadius"),
		ExitRadius:      viper.GetFloat64("engine.exitRadius"),
		HeadingMinMove:  viper.GetFloat64("engine.headingMinMove"),
		DecimateCeiling: viper.GetInt("engine.decimateCeiling"),
		AutoSaveEvery:   viper.GetInt("engine.autoSaveEvery"),
	}
}

// GetGeocodeConfig returns the reverse geocoder configuration.
func GetGeocodeConfig() GeocodeConfig {
	return GeocodeConfig{
		Enabled:   viper.GetBool("geocode.enabled"),
		BaseURL:   viper.GetString("geocode.baseUrl"),
		UserAgent: viper.GetString("geocode.userAgent"),
		Timeout:   viper.GetDuration("geocode.timeout"),
	}
}

// GetInfluxConfig returns the telemetry sink configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetGraylogConfig returns the GELF configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
		Level:   viper.GetString("graylog.level"),
	}
}

// GetOTelConfig returns OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetLiveConfig returns the live stream configuration.
func GetLiveConfig() LiveConfig {
	return LiveConfig{
		Enabled:    viper.GetBool("live.enabled"),
		URL:        viper.GetString("live.url"),
		SecretKey:  viper.GetString("live.secretKey"),
		BufferSize: viper.GetInt("live.bufferSize"),
	}
}

// Get assembles every section.
func Get() Config {
	return Config{
		LogLevel: viper.GetString("logLevel"),
		LogsDir:  viper.GetString("logsDir"),
		Store:    GetStoreConfig(),
		DB:       GetDBConfig(),
		Location: GetLocationConfig(),
		Engine:   GetEngineConfig(),
		Geocode:  GetGeocodeConfig(),
		Influx:   GetInfluxConfig(),
		Graylog:  GetGraylogConfig(),
		OTel:     GetOTelConfig(),
		Live:     GetLiveConfig(),
	}
}

var validate = validator.New()

// Validate checks cfg for values the recorder cannot run with.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
