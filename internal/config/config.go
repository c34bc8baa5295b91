package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Addr адрес для http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type StorageConfig struct {
	RootPath string `yaml:"root_path"`
}

type FileConfig struct {
	MaxNameLength   int         `yaml:"max_name_length"`
	DirPermissions  os.FileMode `yaml:"dir_permissions"`
	FilePermissions os.FileMode `yaml:"file_permissions"`
}

// TransferConfig размеры задаются строкой ("64KiB", "1TiB"), байты заполняются при загрузке.
type TransferConfig struct {
	ChunkSize     string `yaml:"chunk_size"`
	MaxBodySize   string `yaml:"max_body_size"`
	ZipSkipHidden bool   `yaml:"zip_skip_hidden"`

	ChunkBytes   int64 `yaml:"-"`
	MaxBodyBytes int64 `yaml:"-"`
}

type RoutesConfig struct {
	Info     string `yaml:"info"`
	Delete   string `yaml:"delete"`
	Rename   string `yaml:"rename"`
	Create   string `yaml:"create"`
	Upload   string `yaml:"upload"`
	Download string `yaml:"download"`
	Health   string `yaml:"health"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	File     FileConfig     `yaml:"file"`
	Transfer TransferConfig `yaml:"transfer"`
	Routes   RoutesConfig   `yaml:"routes"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// Overrides значения из флагов командной строки, пустые поля не трогают конфиг.
type Overrides struct {
	Host     string
	Port     int
	RootPath string
}

// MaxChunkBytes верхняя граница transfer.chunk_size.
const MaxChunkBytes = 16 << 20

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Default конфиг без файла: слушаем 0.0.0.0:3000 и раздаём текущую директорию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Storage: StorageConfig{
			RootPath: ".",
		},
		File: FileConfig{
			MaxNameLength:   255,
			DirPermissions:  0o755,
			FilePermissions: 0o644,
		},
		Transfer: TransferConfig{
			ChunkSize:     "64KiB",
			MaxBodySize:   "1TiB",
			ZipSkipHidden: true,
		},
		Routes: RoutesConfig{
			Info:     "/info",
			Delete:   "/delete",
			Rename:   "/rename",
			Create:   "/create",
			Upload:   "/upload",
			Download: "/download",
			Health:   "/healthz",
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

func LoadConfig(filename string, overrides Overrides) *Config {
	cfg, err := LoadConfigWithError(filename, overrides)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadConfigWithError порядок слоёв: значения по умолчанию, файл (если задан), флаги.
func LoadConfigWithError(filename string, overrides Overrides) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
		}
	}

	overrides.apply(cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o Overrides) apply(cfg *Config) {
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.RootPath != "" {
		cfg.Storage.RootPath = o.RootPath
	}
}

func (c *Config) finalize() error {
	// корень делаю абсолютным, чтобы не зависеть от рабочего каталога дальше.
	if c.Storage.RootPath != "" {
		absPath, err := filepath.Abs(c.Storage.RootPath)
		if err != nil {
			return fmt.Errorf("failed to resolve storage root path: %w", err)
		}
		c.Storage.RootPath = absPath
	}

	sizes := []struct {
		field string
		value string
		dst   *int64
	}{
		{"transfer.chunk_size", c.Transfer.ChunkSize, &c.Transfer.ChunkBytes},
		{"transfer.max_body_size", c.Transfer.MaxBodySize, &c.Transfer.MaxBodyBytes},
	}
	for _, s := range sizes {
		n, err := units.RAMInBytes(s.value)
		if err != nil {
			return validationError{field: s.field, msg: fmt.Sprintf("invalid size %q", s.value)}
		}
		*s.dst = n
	}

	// валидация конфига
	return validateConfig(c)
}

type validationError struct {
	field string
	msg   string
}

func (e validationError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.msg)
}

// IsValidationError отличает ошибку значений от ошибки чтения файла.
func IsValidationError(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

func validateConfig(cfg *Config) error {
	type validator func() error

	validators := []validator{
		func() error { return validateRequiredString("server.host", cfg.Server.Host) },
		func() error { return validatePort(cfg.Server.Port) },
		func() error { return validateRequiredString("storage.root_path", cfg.Storage.RootPath) },
		func() error { return validatePositiveInt("file.max_name_length", cfg.File.MaxNameLength) },
		func() error { return validateChunkSize(cfg.Transfer.ChunkBytes) },
		func() error { return validatePositiveInt64("transfer.max_body_size", cfg.Transfer.MaxBodyBytes) },
		func() error { return validateNonNegativeDuration("server.read_header_timeout", cfg.Server.ReadHeaderTimeout) },
		func() error { return validateNonNegativeDuration("server.idle_timeout", cfg.Server.IdleTimeout) },
		func() error { return validatePositiveDuration("server.shutdown_timeout", cfg.Server.ShutdownTimeout) },
		func() error { return validateRoute("routes.info", cfg.Routes.Info) },
		func() error { return validateRoute("routes.delete", cfg.Routes.Delete) },
		func() error { return validateRoute("routes.rename", cfg.Routes.Rename) },
		func() error { return validateRoute("routes.create", cfg.Routes.Create) },
		func() error { return validateRoute("routes.upload", cfg.Routes.Upload) },
		func() error { return validateRoute("routes.download", cfg.Routes.Download) },
		func() error { return validateRoute("routes.health", cfg.Routes.Health) },
		func() error { return validateLogLevel(cfg.Log.Level) },
		func() error { return validateLogFormat(cfg.Log.Format) },
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func validateRequiredString(field, value string) error {
	if value == "" {
		return validationError{field: field, msg: "is required"}
	}
	return nil
}

func validatePositiveInt(field string, value int) error {
	if value <= 0 {
		return validationError{field: field, msg: "must be greater than 0"}
	}
	return nil
}

func validatePositiveInt64(field string, value int64) error {
	if value <= 0 {
		return validationError{field: field, msg: "must be greater than 0"}
	}
	return nil
}

// validateChunkSize буфер куска выделяется целиком на каждую передачу.
func validateChunkSize(value int64) error {
	if value <= 0 || value > MaxChunkBytes {
		return validationError{
			field: "transfer.chunk_size",
			msg:   fmt.Sprintf("must be between 1B and %s, got %d", units.BytesSize(MaxChunkBytes), value),
		}
	}
	return nil
}

func validatePositiveDuration(field string, value time.Duration) error {
	if value <= 0 {
		return validationError{field: field, msg: "must be greater than 0"}
	}
	return nil
}

func validateNonNegativeDuration(field string, value time.Duration) error {
	if value < 0 {
		return validationError{field: field, msg: "must not be negative"}
	}
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return validationError{
			field: "server.port",
			msg:   fmt.Sprintf("must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}

// validateRoute маршрут это префикс вида "/name", без завершающего слеша.
func validateRoute(field, value string) error {
	if !strings.HasPrefix(value, "/") || len(value) < 2 || strings.HasSuffix(value, "/") {
		return validationError{field: field, msg: fmt.Sprintf("must look like /name, got %q", value)}
	}
	return nil
}

func validateLogLevel(level string) error {
	if _, err := logrus.ParseLevel(level); err != nil {
		return validationError{field: "log.level", msg: err.Error()}
	}
	return nil
}

func validateLogFormat(format string) error {
	if format != LogFormatText && format != LogFormatJSON {
		return validationError{field: "log.format", msg: fmt.Sprintf("must be %q or %q", LogFormatText, LogFormatJSON)}
	}
	return nil
}
