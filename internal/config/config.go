// Package config loads the service configuration from config.yaml, a .env
// file and the process environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	LogLevel string `yaml:"log_level"`

	Server   ServerConfig   `yaml:"server"`
	Paths    PathsConfig    `yaml:"paths"`
	OCR      OCRConfig      `yaml:"ocr"`
	Backends BackendsConfig `yaml:"backends"`
	AI       AIConfig       `yaml:"ai"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig bounds request handling.
type ServerConfig struct {
	MaxConcurrent   int64         `yaml:"max_concurrent"`
	QueueTimeout    time.Duration `yaml:"queue_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PathsConfig locates temp files, scripts and the input allow-list.
type PathsConfig struct {
	TempDir     string   `yaml:"temp_dir"`
	ScriptDir   string   `yaml:"script_dir"`
	AllowedDirs []string `yaml:"allowed_dirs"`
}

// OCRConfig selects the default backend and preprocessing.
type OCRConfig struct {
	DefaultBackend string           `yaml:"default_backend"`
	Preprocess     PreprocessConfig `yaml:"preprocess"`
}

type PreprocessConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinHeight int     `yaml:"min_height"`
	MaxScale  float64 `yaml:"max_scale"`
	Contrast  float64 `yaml:"contrast"`
	Sharpen   float64 `yaml:"sharpen"`
}

// BackendsConfig holds per-backend invocation parameters.
type BackendsConfig struct {
	Tesseract TesseractConfig `yaml:"tesseract"`
	EasyOCR   ScriptConfig    `yaml:"easyocr"`
	PaddleOCR ScriptConfig    `yaml:"paddleocr"`
	Remote    RemoteConfig    `yaml:"remote"`
	Library   LibraryConfig   `yaml:"library"`
}

type TesseractConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Binary    string        `yaml:"binary"`
	Whitelist string        `yaml:"whitelist"`
	Blacklist string        `yaml:"blacklist"`
	Language  string        `yaml:"language"`
	OEM       int           `yaml:"oem"`
	PSM       int           `yaml:"psm"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ScriptConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interpreter string        `yaml:"interpreter"`
	Script      string        `yaml:"script"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RemoteConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// Fallback names the backend tried when the remote service fails.
	// The chain is registered as FallbackName; "remote" itself never falls back.
	Fallback string `yaml:"fallback"`
}

type LibraryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Whitelist string `yaml:"whitelist"`
	Blacklist string `yaml:"blacklist"`
	Language  string `yaml:"language"`
	PSM       int    `yaml:"psm"`
}

// AIConfig represents vision-model backend configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	// Whitelist filters model replies; empty keeps every character.
	Whitelist string        `yaml:"whitelist"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OpenAIConfig for OpenAI or any OpenAI-compatible endpoint (Ollama, gateways)
type OpenAIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type AuthConfig struct {
	APIKeyHash string        `yaml:"api_key_hash"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:     8080,
		Host:     "0.0.0.0",
		LogLevel: "info",
		Server: ServerConfig{
			MaxConcurrent:   8,
			QueueTimeout:    5 * time.Second,
			MaxUploadSize:   10 * 1024 * 1024,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Paths: PathsConfig{
			ScriptDir:   "PythonOCR",
			AllowedDirs: []string{ocr.DataDir},
		},
		OCR: OCRConfig{
			DefaultBackend: "tesseract",
			Preprocess:     PreprocessConfig{Enabled: false, MinHeight: 100, MaxScale: 4, Contrast: 20, Sharpen: 1},
		},
		Backends: BackendsConfig{
			Tesseract: TesseractConfig{
				Enabled:   true,
				Binary:    ocr.DefaultTesseractBinary,
				Whitelist: ocr.DefaultWhitelist,
				Language:  ocr.DefaultLanguage,
				OEM:       ocr.DefaultOEM,
				PSM:       ocr.DefaultPSM,
				Timeout:   30 * time.Second,
			},
			// The python backends need the PythonOCR scripts and the EasyOCR
			// server deployed next to the binary, so they are opt-in.
			EasyOCR:   ScriptConfig{Interpreter: ocr.DefaultInterpreter, Script: ocr.EasyOCRScript, Timeout: 60 * time.Second},
			PaddleOCR: ScriptConfig{Interpreter: ocr.DefaultInterpreter, Script: ocr.PaddleOCRScript, Timeout: 60 * time.Second},
			Remote:    RemoteConfig{URL: ocr.DefaultRemoteURL, Timeout: 30 * time.Second, Fallback: "easyocr"},
			Library: LibraryConfig{
				Whitelist: ocr.DefaultWhitelist,
				Blacklist: ocr.DefaultBlacklist,
				Language:  ocr.DefaultLanguage,
				PSM:       ocr.DefaultPSM,
			},
		},
		AI: AIConfig{
			OpenAI:  OpenAIConfig{Model: "gpt-4o-mini"},
			Gemini:  GeminiConfig{Model: "gemini-1.5-flash"},
			Timeout: 60 * time.Second,
		},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Database: DatabaseConfig{MaxConns: 10},
		Storage:  StorageConfig{Bucket: "captchas", Prefix: "samples"},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, wrapConfig(fmt.Sprintf("failed to parse %s", path), err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, wrapConfig(fmt.Sprintf("failed to read %s", path), err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from files (default .env) without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return wrapConfig("invalid PORT", err)
		}
		c.Port = port
	}
	str("HOST", &c.Host)
	str("LOG_LEVEL", &c.LogLevel)
	str("OCR_DEFAULT_BACKEND", &c.OCR.DefaultBackend)
	str("OCR_REMOTE_URL", &c.Backends.Remote.URL)
	str("OCR_SCRIPT_DIR", &c.Paths.ScriptDir)
	str("OCR_TEMP_DIR", &c.Paths.TempDir)
	if v := getenv("OCR_ALLOWED_DIRS"); v != "" {
		c.Paths.AllowedDirs = filepath.SplitList(v)
	}
	str("TESSERACT_BINARY", &c.Backends.Tesseract.Binary)
	str("PYTHON_INTERPRETER", &c.Backends.EasyOCR.Interpreter)
	str("PYTHON_INTERPRETER", &c.Backends.PaddleOCR.Interpreter)

	str("DATABASE_URL", &c.Database.URL)
	str("MINIO_ENDPOINT", &c.Storage.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Storage.AccessKey)
	str("MINIO_SECRET_KEY", &c.Storage.SecretKey)
	str("MINIO_BUCKET", &c.Storage.Bucket)
	str("MINIO_REGION", &c.Storage.Region)
	if v := getenv("MINIO_USE_SSL"); v != "" {
		c.Storage.UseSSL = v == "true"
	}

	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("API_KEY_HASH", &c.Auth.APIKeyHash)

	if v := strings.TrimSpace(getenv("OPENAI_API_KEY")); v != "" {
		c.AI.OpenAI.APIKey = v
		c.AI.OpenAI.Enabled = true
	}
	str("OPENAI_BASE_URL", &c.AI.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.AI.OpenAI.Model)
	if v := strings.TrimSpace(getenv("GEMINI_API_KEY")); v != "" {
		c.AI.Gemini.APIKey = v
		c.AI.Gemini.Enabled = true
	}
	str("GEMINI_MODEL", &c.AI.Gemini.Model)
	return nil
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ocr.ConfigError("validate config", fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Server.MaxConcurrent < 1 {
		return ocr.ConfigError("validate config", "server.max_concurrent must be at least 1")
	}
	if c.Server.MaxUploadSize < 1 {
		return ocr.ConfigError("validate config", "server.max_upload_size must be positive")
	}
	if !c.BackendEnabled(c.OCR.DefaultBackend) {
		return ocr.ConfigError("validate config", "ocr.default_backend is not an enabled backend: "+c.OCR.DefaultBackend)
	}
	b := c.Backends
	if b.Tesseract.Enabled && b.Tesseract.Binary == "" {
		return ocr.ConfigError("validate config", "backends.tesseract.binary is required")
	}
	if b.Tesseract.PSM > 13 || b.Tesseract.OEM > 3 {
		return ocr.ConfigError("validate config", "backends.tesseract oem/psm out of range")
	}
	if b.Remote.Enabled && b.Remote.Fallback != "" {
		if b.Remote.Fallback == "remote" || b.Remote.Fallback == FallbackName {
			return ocr.ConfigError("validate config", "backends.remote.fallback cannot point back at the remote backend")
		}
		if !c.BackendEnabled(b.Remote.Fallback) {
			return ocr.ConfigError("validate config", "backends.remote.fallback names a disabled backend: "+b.Remote.Fallback)
		}
	}
	if c.AI.OpenAI.Enabled && c.AI.OpenAI.APIKey == "" && c.AI.OpenAI.BaseURL == "" {
		return ocr.ConfigError("validate config", "ai.openai needs an api_key or a base_url")
	}
	if c.AI.Gemini.Enabled && c.AI.Gemini.APIKey == "" {
		return ocr.ConfigError("validate config", "ai.gemini.api_key is required")
	}
	if (c.Storage.Endpoint != "") != (c.Storage.AccessKey != "" && c.Storage.SecretKey != "") {
		return ocr.ConfigError("validate config", "storage needs endpoint, access_key and secret_key together")
	}
	return nil
}

// BackendEnabled reports whether name refers to an enabled backend.
func (c *Config) BackendEnabled(name string) bool {
	switch name {
	case "tesseract":
		return c.Backends.Tesseract.Enabled
	case "easyocr":
		return c.Backends.EasyOCR.Enabled
	case "paddleocr":
		return c.Backends.PaddleOCR.Enabled
	case "remote":
		return c.Backends.Remote.Enabled
	case FallbackName:
		return c.Backends.Remote.Enabled && c.Backends.Remote.Fallback != ""
	case "library":
		return c.Backends.Library.Enabled
	case "openai":
		return c.AI.OpenAI.Enabled
	case "gemini":
		return c.AI.Gemini.Enabled
	}
	return false
}

// FallbackName is the backend name of the remote service chained to its fallback.
const FallbackName = "remote-fallback"

func wrapConfig(msg string, err error) error {
	e := ocr.ConfigError("load config", msg)
	e.Err = err
	return e
}
