package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.json"

// Backend names for artifact storage.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Fingerprint parameter defaults, matching the reference generators.
const (
	DefaultMHFPSeed  uint32  = 42
	DefaultMHFPRings         = true
	DefaultErGFuzz   float32 = 0.3
)

// FingerprintConfig fixes the generator parameters for every kind. The zero
// value means the defaults; MHFPSeed, MHFPRings and ErGFuzz are pointers so
// an explicit zero or false is kept.
type FingerprintConfig struct {
	ECFPRadius       int      `json:"ecfpRadius" yaml:"ecfpRadius"`
	ECFPBits         int      `json:"ecfpBits" yaml:"ecfpBits"`
	RDKitMinPath     int      `json:"rdkitMinPath" yaml:"rdkitMinPath"`
	RDKitMaxPath     int      `json:"rdkitMaxPath" yaml:"rdkitMaxPath"`
	RDKitBits        int      `json:"rdkitBits" yaml:"rdkitBits"`
	RDKitBitsPerPath int      `json:"rdkitBitsPerPath" yaml:"rdkitBitsPerPath"`
	MHFPPermutations int      `json:"mhfpPermutations" yaml:"mhfpPermutations"`
	MHFPSeed         *uint32  `json:"mhfpSeed,omitempty" yaml:"mhfpSeed,omitempty"`
	MHFPRadius       int      `json:"mhfpRadius" yaml:"mhfpRadius"`
	MHFPRings        *bool    `json:"mhfpRings,omitempty" yaml:"mhfpRings,omitempty"`
	ErGFuzz          *float32 `json:"ergFuzz,omitempty" yaml:"ergFuzz,omitempty"`
}

// S3Config locates artifacts in an S3 bucket. Empty region and profile fall
// back to the default AWS credential chain.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Region       string `json:"region" yaml:"region"`
	Profile      string `json:"profile" yaml:"profile"`
	UsePathStyle bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// ArtifactConfig selects where model artifacts are read from.
type ArtifactConfig struct {
	Backend string   `json:"backend" yaml:"backend"`
	Dir     string   `json:"dir" yaml:"dir"`
	S3      S3Config `json:"s3" yaml:"s3"`
	OrtLib  string   `json:"ortLib" yaml:"ortLib"`
}

// VectorCacheConfig controls the fingerprint vector cache.
type VectorCacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Config aggregates runtime settings persisted to config.json or config.yaml.
type Config struct {
	Fingerprint  string            `json:"fingerprint" yaml:"fingerprint"`
	Model        string            `json:"model" yaml:"model"`
	Fingerprints FingerprintConfig `json:"fingerprints" yaml:"fingerprints"`
	Artifacts    ArtifactConfig    `json:"artifacts" yaml:"artifacts"`
	VectorCache  VectorCacheConfig `json:"vectorCache" yaml:"vectorCache"`
	Server       ServerConfig      `json:"server" yaml:"server"`
	Logging      LoggingConfig     `json:"logging" yaml:"logging"`
	Columns      ColumnCandidates  `json:"columns" yaml:"columns"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Fingerprint == "" {
		c.Fingerprint = MHFP6.Key()
	}
	if c.Model == "" {
		c.Model = "rf"
	}
	c.Fingerprints.applyDefaults()
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = BackendFile
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "models"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Columns = c.Columns.withDefaults()
}

func (f *FingerprintConfig) applyDefaults() {
	if f.ECFPRadius <= 0 {
		f.ECFPRadius = 4
	}
	if f.ECFPBits <= 0 {
		f.ECFPBits = 1024
	}
	if f.RDKitMinPath <= 0 {
		f.RDKitMinPath = 1
	}
	if f.RDKitMaxPath <= 0 {
		f.RDKitMaxPath = 7
	}
	if f.RDKitBits <= 0 {
		f.RDKitBits = 1024
	}
	if f.RDKitBitsPerPath <= 0 {
		f.RDKitBitsPerPath = 2
	}
	if f.MHFPPermutations <= 0 {
		f.MHFPPermutations = 2048
	}
	if f.MHFPSeed == nil {
		f.MHFPSeed = ptr(DefaultMHFPSeed)
	}
	if f.MHFPRings == nil {
		f.MHFPRings = ptr(DefaultMHFPRings)
	}
	if f.MHFPRadius <= 0 {
		f.MHFPRadius = 3
	}
	if f.ErGFuzz == nil {
		f.ErGFuzz = ptr(DefaultErGFuzz)
	}
}

// Seed returns the MHFP permutation seed.
func (f FingerprintConfig) Seed() uint32 {
	if f.MHFPSeed == nil {
		return DefaultMHFPSeed
	}
	return *f.MHFPSeed
}

// Rings reports whether MHFP adds ring shingles.
func (f FingerprintConfig) Rings() bool {
	if f.MHFPRings == nil {
		return DefaultMHFPRings
	}
	return *f.MHFPRings
}

// Fuzz returns the ErG distance fuzz increment.
func (f FingerprintConfig) Fuzz() float32 {
	if f.ErGFuzz == nil {
		return DefaultErGFuzz
	}
	return *f.ErGFuzz
}

// resolved returns a copy with defaults applied and no pointers shared with f.
func (f FingerprintConfig) resolved() FingerprintConfig {
	out := f
	out.MHFPSeed = ptr(f.Seed())
	out.MHFPRings = ptr(f.Rings())
	out.ErGFuzz = ptr(f.Fuzz())
	out.applyDefaults()
	return out
}

func ptr[T any](v T) *T {
	return &v
}

// Validate reports settings that cannot be served.
func (c Config) Validate() error {
	if _, err := ParseFingerprintKind(c.Fingerprint); err != nil {
		return err
	}
	if strings.ContainsAny(c.Model, `/\`) {
		return fmt.Errorf("invalid model name %q", c.Model)
	}
	if c.Fingerprints.Fuzz() < 0 {
		return fmt.Errorf("erg fuzz %g is negative", c.Fingerprints.Fuzz())
	}
	if c.Fingerprints.RDKitMinPath > c.Fingerprints.RDKitMaxPath {
		return fmt.Errorf("rdkit path range %d..%d is empty", c.Fingerprints.RDKitMinPath, c.Fingerprints.RDKitMaxPath)
	}
	switch c.Artifacts.Backend {
	case BackendFile:
	case BackendS3:
		if c.Artifacts.S3.Bucket == "" {
			return errors.New("s3 backend requires a bucket")
		}
	default:
		return fmt.Errorf("unknown artifact backend %q", c.Artifacts.Backend)
	}
	return nil
}

// Kind returns the configured default fingerprint kind.
func (c Config) Kind() (FingerprintKind, error) {
	return ParseFingerprintKind(c.Fingerprint)
}

// LoadConfig loads configuration from the given path or the default config.json.
// Files ending in .yaml or .yml are decoded as YAML. AMRKG_* environment
// variables override file values.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	cfg.ApplyDefaults()
	if cfg.VectorCache.Enabled && cfg.VectorCache.Dir != "" {
		if err := os.MkdirAll(cfg.VectorCache.Dir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// LoadEnvFiles reads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are kept.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("AMRKG_FINGERPRINT", &cfg.Fingerprint)
	set("AMRKG_MODEL_NAME", &cfg.Model)
	set("AMRKG_MODEL_DIR", &cfg.Artifacts.Dir)
	set("AMRKG_BACKEND", &cfg.Artifacts.Backend)
	set("AMRKG_S3_BUCKET", &cfg.Artifacts.S3.Bucket)
	set("AMRKG_S3_PREFIX", &cfg.Artifacts.S3.Prefix)
	set("AMRKG_S3_REGION", &cfg.Artifacts.S3.Region)
	set("AMRKG_ORT_LIB", &cfg.Artifacts.OrtLib)
	set("AMRKG_ADDR", &cfg.Server.Addr)
	set("AMRKG_LOG_LEVEL", &cfg.Logging.Level)
	if cfg.Artifacts.S3.Bucket != "" && os.Getenv("AMRKG_BACKEND") == "" && cfg.Artifacts.Backend == "" {
		cfg.Artifacts.Backend = BackendS3
	}
}
