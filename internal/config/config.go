package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// Storage drivers, selected by the scheme of StorageConfig.URL.
const (
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"
)

// Config is the root updater configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Bungie  BungieConfig  `yaml:"bungie"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig holds document store settings.
type StorageConfig struct {
	URL            string        `yaml:"url"             env:"STORAGE_URL"             env-default:"mongodb://localhost:27017"`
	Database       string        `yaml:"database"        env:"STORAGE_DATABASE"        env-default:"destiny2"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"STORAGE_CONNECT_TIMEOUT" env-default:"10s"`
}

// HTTPConfig holds outbound HTTP settings shared by every Bungie request.
// UseSystemProxy defaults to true in newConfig; an env-default tag would
// override an explicit false from the file.
type HTTPConfig struct {
	UseSystemProxy       bool          `yaml:"use_system_proxy"       env:"HTTP_USE_SYSTEM_PROXY"`
	Timeout              time.Duration `yaml:"timeout"                env:"HTTP_TIMEOUT"                env-default:"5m"`
	RetryAttempts        int           `yaml:"retry_attempts"         env:"HTTP_RETRY_ATTEMPTS"         env-default:"1"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"HTTP_RETRY_INITIAL_INTERVAL" env-default:"500ms"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"     env:"HTTP_RETRY_MAX_INTERVAL"     env-default:"10s"`
}

// BungieConfig locates the Bungie.net API.
type BungieConfig struct {
	BaseURL      string `yaml:"base_url"      env:"BUNGIE_BASE_URL"      env-default:"https://www.bungie.net"`
	ManifestPath string `yaml:"manifest_path" env:"BUNGIE_MANIFEST_PATH" env-default:"/Platform/Destiny2/Manifest/"`
	APIKey       string `yaml:"api_key"       env:"BUNGIE_API_KEY"`
}

// IngestConfig controls what a run ingests and where raw payloads are cached.
type IngestConfig struct {
	LocalesRaw string        `yaml:"locales"     env:"INGEST_LOCALES"     env-default:"en,zh-chs"`
	Entity     string        `yaml:"entity"      env:"INGEST_ENTITY"      env-default:"DestinyInventoryItemDefinition"`
	DebugDir   string        `yaml:"debug_dir"   env:"INGEST_DEBUG_DIR"   env-default:"./debug"`
	RunTimeout time.Duration `yaml:"run_timeout" env:"INGEST_RUN_TIMEOUT" env-default:"30m"`
	DryRun     bool          `yaml:"dry_run"     env:"INGEST_DRY_RUN"`

	// Locales is parsed from LocalesRaw during validation.
	Locales []domain.Locale `yaml:"-" env:"-"`
}

// ArchiveConfig enables copying raw payloads to S3. Empty bucket disables it.
type ArchiveConfig struct {
	S3Bucket    string `yaml:"s3_bucket"     env:"ARCHIVE_S3_BUCKET"`
	S3Prefix    string `yaml:"s3_prefix"     env:"ARCHIVE_S3_PREFIX"     env-default:"d2-itemdb"`
	S3Region    string `yaml:"s3_region"     env:"ARCHIVE_S3_REGION"     env-default:"us-east-1"`
	S3Endpoint  string `yaml:"s3_endpoint"   env:"ARCHIVE_S3_ENDPOINT"`
	S3AccessKey string `yaml:"s3_access_key" env:"ARCHIVE_S3_ACCESS_KEY"`
	S3SecretKey string `yaml:"s3_secret_key" env:"ARCHIVE_S3_SECRET_KEY"`
}

// Enabled reports whether the S3 archive is configured.
func (c ArchiveConfig) Enabled() bool { return c.S3Bucket != "" }

// MetricsConfig holds Prometheus Pushgateway settings. Empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"METRICS_PUSHGATEWAY_URL"`
	Job            string `yaml:"job"             env:"METRICS_JOB"             env-default:"d2_itemdb_updater"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// newConfig returns a Config with the defaults cleanenv cannot express.
func newConfig() Config {
	return Config{HTTP: HTTPConfig{UseSystemProxy: true}}
}

// Driver returns the storage driver implied by the URL scheme, or "" if unsupported.
func (c StorageConfig) Driver() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return DriverMongo
	case "postgres", "postgresql":
		return DriverPostgres
	}
	return ""
}

// RedactedURL returns the storage URL with any password masked, for logging.
func (c StorageConfig) RedactedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
