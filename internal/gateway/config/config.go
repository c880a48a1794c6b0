package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Port     string
	Env      string
	Store    StoreConfig
	Cache    CacheConfig
	Artifact ArtifactConfig
	Run      RunConfig
	Addons   AddonConfig
	Auth     AuthConfig
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
}

type StoreConfig struct {
	Kind        string
	DataPath    string
	DatabaseURL string
	RedisURL    string
}

type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RunConfig struct {
	Command       []string
	WorkspaceDir  string
	Timeout       time.Duration
	KeepWorkspace bool
}

type AddonConfig struct {
	// Dir holds the addons sketches can use.
	Dir string
	// CoreDir holds the bundled addons copied into Dir at startup.
	CoreDir string
}

type AuthConfig struct {
	// JWTSecret enables bearer token checks when set.
	JWTSecret string
	Issuer    string
}

// Load reads .env, the command line and the environment. Environment values
// win over flags.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return loadFrom(flag.CommandLine, os.Args[1:], os.Getenv)
}

func loadFrom(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	port := fs.String("port", ":8081", "server port")
	store := fs.String("store", "", "project store: memory, file, postgres or redis")
	data := fs.String("data", "data/projects.json", "project file for the file store")
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := env("PORT"); v != "" {
		if strings.HasPrefix(v, ":") {
			*port = v
		} else {
			*port = ":" + v
		}
	}
	appEnv := firstNonEmpty(env("APP_ENV"), "local")

	cfg := &Config{Port: *port, Env: appEnv}
	if strings.EqualFold(appEnv, "local") {
		cfg = withLocalDefaults(cfg, env)
	}

	cfg.Store.DatabaseURL = firstNonEmpty(env("DATABASE_URL"), cfg.Store.DatabaseURL)
	cfg.Store.RedisURL = firstNonEmpty(env("REDIS_URL"), cfg.Store.RedisURL)
	cfg.Store.DataPath = firstNonEmpty(env("SKETCH_DATA_PATH"), *data)
	cfg.Store.Kind = strings.ToLower(firstNonEmpty(env("SKETCH_STORE"), *store, defaultStoreKind(env)))
	switch cfg.Store.Kind {
	case StoreMemory, StoreFile:
	case StorePostgres:
		if cfg.Store.DatabaseURL == "" {
			return nil, fmt.Errorf("store %q needs DATABASE_URL", cfg.Store.Kind)
		}
	case StoreRedis:
		if cfg.Store.RedisURL == "" {
			return nil, fmt.Errorf("store %q needs REDIS_URL", cfg.Store.Kind)
		}
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store.Kind)
	}

	cfg.Cache = CacheConfig{
		Enabled:    parseBool(env("SKETCH_CACHE"), cfg.Store.Kind != StoreMemory),
		TTL:        parseDuration(env("SKETCH_CACHE_TTL"), 5*time.Minute),
		MaxEntries: parseInt(env("SKETCH_CACHE_SIZE"), 2048),
	}

	artifact := loadArtifactConfig(env)
	if artifact.Endpoint == "" && cfg.Artifact.Endpoint != "" {
		artifact.Endpoint = cfg.Artifact.Endpoint
		artifact.UseSSL = parseBool(env("ARTIFACT_S3_USE_SSL"), false)
	}
	artifact.Enabled = artifact.Endpoint != ""
	cfg.Artifact = artifact

	cfg.Run.Command = firstNonEmptyFields(strings.Fields(env("SKETCH_RUN_COMMAND")), cfg.Run.Command)
	cfg.Run.WorkspaceDir = firstNonEmpty(env("SKETCH_WORKSPACE"), cfg.Run.WorkspaceDir)
	timeout := parseDuration(env("SKETCH_RUN_TIMEOUT"), 0)
	if timeout > 0 {
		cfg.Run.Timeout = timeout
	}
	cfg.Run.KeepWorkspace = parseBool(env("SKETCH_KEEP_WORKSPACE"), cfg.Run.KeepWorkspace)

	cfg.Addons = AddonConfig{
		Dir:     firstNonEmpty(env("SKETCH_ADDONS_DIR"), "data/addons"),
		CoreDir: env("SKETCH_CORE_ADDONS_DIR"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: env("SKETCH_JWT_SECRET"),
		Issuer:    firstNonEmpty(env("SKETCH_JWT_ISSUER"), "sketchbook"),
	}
	if origins := env("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	return cfg, nil
}

func defaultStoreKind(env func(string) string) string {
	switch {
	case env("DATABASE_URL") != "":
		return StorePostgres
	case env("REDIS_URL") != "":
		return StoreRedis
	}
	return StoreFile
}

func loadArtifactConfig(env func(string) string) ArtifactConfig {
	return ArtifactConfig{
		Endpoint:  env("ARTIFACT_S3_ENDPOINT"),
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "sketchbook-runs"),
		UseSSL:    parseBool(env("ARTIFACT_S3_USE_SSL"), true),
	}
}

func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyFields(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
