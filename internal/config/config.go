package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"filebox/internal/auth"
	"filebox/internal/blobstore"
	"filebox/internal/models"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7333"
	DefaultDBFileName  = ".filebox.db"
	DefaultLogLevel    = "info"
	DefaultBlobDirName = ".filebox-blobs"

	ModeDevelopment = "development"
	ModeProduction  = "production"

	BackendSQLite = "sqlite"

	DefaultMultipartMemory int64 = 8 * 1024 * 1024
	DefaultSweepGracePeriod      = 24 * time.Hour
	DefaultSweepBatchSize        = 500
	DefaultRequestsPerSecond     = 20.0
	DefaultRequestBurst          = 40

	configFileName           = ".filebox.toml"
	configDirEnvKey          = "FILEBOX_CONFIG_DIR"
	trustProjectConfigEnvKey = "FILEBOX_TRUST_PROJECT_CONFIG"

	apiURLEnvKey         = "FILEBOX_API_URL"
	dbPathEnvKey         = "FILEBOX_DB"
	logLevelEnvKey       = "FILEBOX_LOG_LEVEL"
	modeEnvKey           = "FILEBOX_MODE"
	tokenSecretEnvKey    = "FILEBOX_TOKEN_SECRET"
	storageBackendEnvKey = "FILEBOX_STORAGE_BACKEND"
	maxUploadEnvKey      = "FILEBOX_MAX_UPLOAD_BYTES"
	corsOriginsEnvKey    = "FILEBOX_CORS_ORIGINS"
	redisAddrEnvKey      = "FILEBOX_REDIS_ADDR"
	otlpEndpointEnvKey   = "FILEBOX_OTLP_ENDPOINT"

	redactedSecret = "********"
)

// AuthConfig configures credential issuing.
type AuthConfig struct {
	TokenSecret string        `toml:"token_secret"`
	TokenTTL    time.Duration `toml:"token_ttl"`
}

// S3Config selects the S3 bucket used by the s3 backend.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// GCSConfig selects the bucket used by the gcs backend.
type GCSConfig struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// StorageConfig defines where and how blob bytes are kept.
type StorageConfig struct {
	Backend            string    `toml:"backend"`
	ChunkSizeBytes     int       `toml:"chunk_size_bytes"`
	Compression        string    `toml:"compression"`
	LocalRoot          string    `toml:"local_root"`
	MaxUploadBytes     int64     `toml:"max_upload_bytes"`
	MultipartMaxMemory int64     `toml:"multipart_max_memory"`
	S3                 S3Config  `toml:"s3"`
	GCS                GCSConfig `toml:"gcs"`
}

// SweepConfig tunes the orphan reconciliation sweep.
type SweepConfig struct {
	GracePeriod time.Duration `toml:"grace_period"`
	BatchSize   int           `toml:"batch_size"`
}

// CORSConfig lists browser origins admitted by the API.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// RateLimitConfig defines the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	RedisAddr         string  `toml:"redis_addr"`
}

// TelemetryConfig points the OTLP exporters at a collector.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
}

// Config defines runtime configuration for filebox.
type Config struct {
	APIURL                   string          `toml:"api_url"`
	DBPath                   string          `toml:"db_path"`
	LogLevel                 string          `toml:"log_level"`
	Mode                     string          `toml:"mode"`
	Auth                     AuthConfig      `toml:"auth"`
	Storage                  StorageConfig   `toml:"storage"`
	Sweep                    SweepConfig     `toml:"sweep"`
	CORS                     CORSConfig      `toml:"cors"`
	RateLimit                RateLimitConfig `toml:"rate_limit"`
	Telemetry                TelemetryConfig `toml:"telemetry"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Mode:     ModeDevelopment,
		Auth: AuthConfig{
			TokenTTL: auth.DefaultTokenTTL,
		},
		Storage: StorageConfig{
			Backend:            BackendSQLite,
			ChunkSizeBytes:     models.DefaultChunkSize,
			Compression:        blobstore.CompressionNone.String(),
			MaxUploadBytes:     models.DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMemory,
		},
		Sweep: SweepConfig{
			GracePeriod: DefaultSweepGracePeriod,
			BatchSize:   DefaultSweepBatchSize,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultRequestBurst,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"mode",
	"auth.token_secret",
	"auth.token_ttl",
	"storage.backend",
	"storage.chunk_size_bytes",
	"storage.compression",
	"storage.local_root",
	"storage.max_upload_bytes",
	"storage.multipart_max_memory",
	"storage.s3.bucket",
	"storage.s3.region",
	"storage.s3.endpoint",
	"storage.s3.prefix",
	"storage.gcs.bucket",
	"storage.gcs.prefix",
	"sweep.grace_period",
	"sweep.batch_size",
	"cors.allowed_origins",
	"rate_limit.requests_per_second",
	"rate_limit.burst",
	"rate_limit.redis_addr",
	"telemetry.otlp_endpoint",
	"telemetry.insecure",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. The token secret is redacted.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "mode":
		return c.Mode, nil
	case "auth.token_secret":
		if c.Auth.TokenSecret == "" {
			return "", nil
		}
		return redactedSecret, nil
	case "auth.token_ttl":
		return c.Auth.TokenTTL.String(), nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.chunk_size_bytes":
		return strconv.Itoa(c.Storage.ChunkSizeBytes), nil
	case "storage.compression":
		return c.Storage.Compression, nil
	case "storage.local_root":
		return c.Storage.LocalRoot, nil
	case "storage.max_upload_bytes":
		return strconv.FormatInt(c.Storage.MaxUploadBytes, 10), nil
	case "storage.multipart_max_memory":
		return strconv.FormatInt(c.Storage.MultipartMaxMemory, 10), nil
	case "storage.s3.bucket":
		return c.Storage.S3.Bucket, nil
	case "storage.s3.region":
		return c.Storage.S3.Region, nil
	case "storage.s3.endpoint":
		return c.Storage.S3.Endpoint, nil
	case "storage.s3.prefix":
		return c.Storage.S3.Prefix, nil
	case "storage.gcs.bucket":
		return c.Storage.GCS.Bucket, nil
	case "storage.gcs.prefix":
		return c.Storage.GCS.Prefix, nil
	case "sweep.grace_period":
		return c.Sweep.GracePeriod.String(), nil
	case "sweep.batch_size":
		return strconv.Itoa(c.Sweep.BatchSize), nil
	case "cors.allowed_origins":
		return strings.Join(c.CORS.AllowedOrigins, ","), nil
	case "rate_limit.requests_per_second":
		return strconv.FormatFloat(c.RateLimit.RequestsPerSecond, 'g', -1, 64), nil
	case "rate_limit.burst":
		return strconv.Itoa(c.RateLimit.Burst), nil
	case "rate_limit.redis_addr":
		return c.RateLimit.RedisAddr, nil
	case "telemetry.otlp_endpoint":
		return c.Telemetry.OTLPEndpoint, nil
	case "telemetry.insecure":
		return strconv.FormatBool(c.Telemetry.Insecure), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), ModeProduction)
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, c.Mode)
	}
	if c.IsProduction() && len(c.Auth.TokenSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.token_secret must be at least %d bytes in production mode", auth.MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if _, err := blobstore.ParseCompression(c.Storage.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}

	switch blobstore.StoreType(c.StorageBackend()) {
	case BackendSQLite:
	case blobstore.StoreTypeLocal:
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case blobstore.StoreTypeS3:
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	case blobstore.StoreTypeGCS:
		if strings.TrimSpace(c.Storage.GCS.Bucket) == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q (supported: sqlite, local, s3, gcs)", c.Storage.Backend)
	}
	return nil
}

// StorageBackend returns the normalized backend name.
func (c *Config) StorageBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if backend == "" {
		return BackendSQLite
	}
	return backend
}

// BackendOptions maps the storage section onto object backend settings.
func (c *Config) BackendOptions() blobstore.BackendOptions {
	return blobstore.BackendOptions{
		Type:      blobstore.StoreType(c.StorageBackend()),
		LocalRoot: c.Storage.LocalRoot,
		S3: blobstore.S3Config{
			Bucket:   c.Storage.S3.Bucket,
			Region:   c.Storage.S3.Region,
			Endpoint: c.Storage.S3.Endpoint,
			Prefix:   c.Storage.S3.Prefix,
		},
		GCS: blobstore.GCSOptions{
			Bucket: c.Storage.GCS.Bucket,
			Prefix: c.Storage.GCS.Prefix,
		},
	}
}

// TokenSecret returns the configured signing secret. In development mode an
// unset secret is replaced by a random one and ephemeral is true.
func (c *Config) TokenSecret() (secret []byte, ephemeral bool, err error) {
	if c.Auth.TokenSecret != "" {
		if c.IsProduction() && len(c.Auth.TokenSecret) < auth.MinSecretLength {
			return nil, false, fmt.Errorf("auth.token_secret must be at least %d bytes in production mode", auth.MinSecretLength)
		}
		return []byte(c.Auth.TokenSecret), false, nil
	}
	if c.IsProduction() {
		return nil, false, fmt.Errorf("auth.token_secret is required in production mode (set %s)", tokenSecretEnvKey)
	}
	generated, err := auth.GenerateSecret()
	if err != nil {
		return nil, false, fmt.Errorf("generate token secret: %w", err)
	}
	return generated, true, nil
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
// Files holding a token secret are written owner-only.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	perm := os.FileMode(0o644)
	if key == "auth.token_secret" {
		perm = 0o600
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	cfg.normalizeDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		c.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		c.DBPath = dbPath
	}
	if level := strings.TrimSpace(os.Getenv(logLevelEnvKey)); level != "" {
		c.LogLevel = level
	}
	if mode := strings.TrimSpace(os.Getenv(modeEnvKey)); mode != "" {
		c.Mode = mode
	}
	if secret := os.Getenv(tokenSecretEnvKey); secret != "" {
		c.Auth.TokenSecret = secret
	}
	if backend := strings.TrimSpace(os.Getenv(storageBackendEnvKey)); backend != "" {
		c.Storage.Backend = backend
	}
	if raw := strings.TrimSpace(os.Getenv(maxUploadEnvKey)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", maxUploadEnvKey, raw)
		}
		c.Storage.MaxUploadBytes = parsed
	}
	if raw := strings.TrimSpace(os.Getenv(corsOriginsEnvKey)); raw != "" {
		c.CORS.AllowedOrigins = splitCSV(raw)
	}
	if addr := strings.TrimSpace(os.Getenv(redisAddrEnvKey)); addr != "" {
		c.RateLimit.RedisAddr = addr
	}
	if endpoint := strings.TrimSpace(os.Getenv(otlpEndpointEnvKey)); endpoint != "" {
		c.Telemetry.OTLPEndpoint = endpoint
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_upload_bytes", "storage.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.chunk_size_bytes", "sweep.batch_size", "rate_limit.burst":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "rate_limit.requests_per_second":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive number", key)
		}
		return parsed, nil
	case "auth.token_ttl", "sweep.grace_period":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 || (key == "auth.token_ttl" && parsed == 0) {
			return nil, fmt.Errorf("%s must be a duration such as 24h", key)
		}
		return parsed.String(), nil
	case "storage.compression":
		if _, err := blobstore.ParseCompression(value); err != nil {
			return nil, err
		}
		return strings.ToLower(value), nil
	case "mode":
		mode := strings.ToLower(value)
		if mode != ModeDevelopment && mode != ModeProduction {
			return nil, fmt.Errorf("mode must be %q or %q", ModeDevelopment, ModeProduction)
		}
		return mode, nil
	case "telemetry.insecure":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "cors.allowed_origins":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = ModeDevelopment
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = auth.DefaultTokenTTL
	}
	if c.Storage.ChunkSizeBytes <= 0 {
		c.Storage.ChunkSizeBytes = models.DefaultChunkSize
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = models.DefaultMaxUploadBytes
	}
	if c.Storage.MultipartMaxMemory <= 0 {
		c.Storage.MultipartMaxMemory = DefaultMultipartMemory
	}
	if c.StorageBackend() == string(blobstore.StoreTypeLocal) && strings.TrimSpace(c.Storage.LocalRoot) == "" && c.DBPath != "" {
		c.Storage.LocalRoot = filepath.Join(filepath.Dir(c.DBPath), DefaultBlobDirName)
	}
	if c.Sweep.GracePeriod < 0 {
		c.Sweep.GracePeriod = DefaultSweepGracePeriod
	}
	if c.Sweep.BatchSize <= 0 {
		c.Sweep.BatchSize = DefaultSweepBatchSize
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRequestBurst
	}
}
