// Package conf reads mongodoc configuration files and schema declarations.
package conf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dosco/mongodoc/core"
	"github.com/dosco/mongodoc/internal/util"
	"github.com/dosco/mongodoc/mongodriver"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the mongodoc configuration
type Config struct {
	// Application name is used in log messages and sent to the server
	AppName string `mapstructure:"app_name"`

	// Environment, set from GO_ENV
	Env string `mapstructure:"env"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level"`

	// Logging format: json or simple
	LogFormat string `mapstructure:"log_format"`

	// Path of the YAML file declaring the schemas, relative to the config
	// directory unless absolute
	SchemaFile string `mapstructure:"schema_file"`

	// The default path to find all configuration files
	ConfigPath string `mapstructure:"config_path"`

	Mongo mongodriver.Config `mapstructure:"mongo"`
	Query Query              `mapstructure:"query"`

	viper *viper.Viper
}

// Query tunes how models dispatch calls
type Query struct {
	// Pause between retry attempts
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// Number of writes sent per bulk request
	BulkBatchSize int `mapstructure:"bulk_batch_size"`

	// Number of parsed filter keys cached per model
	KeyCacheSize int `mapstructure:"key_cache_size"`
}

// ReadInConfig reads in the config file. When the file sets inherits the
// named file is read first and this one merged on top.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but reads from fs
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}

		if err := vi.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading inherited config '%s'", pcf)
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, errors.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, errors.Wrap(err, "merging config")
		}
	}

	c := &Config{viper: vi}

	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	c.ConfigPath = cp

	return c, nil
}

// NewConfig creates a configuration from text in the given format (yaml
// when empty)
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	c := &Config{viper: vi}

	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	return c, nil
}

func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("app_name", "mongodoc")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "simple")
	vi.SetDefault("schema_file", "schema.yml")

	vi.SetDefault("mongo.uri", "mongodb://localhost:27017")
	vi.SetDefault("mongo.database", "")
	vi.SetDefault("mongo.app_name", "")
	vi.SetDefault("mongo.max_pool_size", mongodriver.DefaultMaxPoolSize)
	vi.SetDefault("mongo.server_selection_timeout", mongodriver.DefaultTimeout)
	vi.SetDefault("mongo.connect_timeout", mongodriver.DefaultTimeout)
	vi.SetDefault("mongo.timeout", mongodriver.DefaultTimeout)
	vi.SetDefault("mongo.tls", false)
	vi.SetDefault("mongo.tls_ca_file", "")
	vi.SetDefault("mongo.read_preference", "")

	vi.SetDefault("query.retry_delay", 0)
	vi.SetDefault("query.bulk_batch_size", core.DefaultBulkBatchSize)
	vi.SetDefault("query.key_cache_size", core.DefaultKeyCacheSize)

	vi.SetDefault("env", "development")
	vi.BindEnv("env", "GO_ENV") //nolint:errcheck

	// MONGODOC_MONGO_URI overrides mongo.uri
	vi.SetEnvPrefix("MONGODOC")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	return vi
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// AbsolutePath returns p relative to the config directory
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// ShouldUseJSONLogs returns true if log_format is json, or when it is auto
// and the environment is production
func (c *Config) ShouldUseJSONLogs() bool {
	switch c.LogFormat {
	case "json":
		return true
	case "auto":
		return GetConfigName() == "prod"
	}
	return false
}

// NewLogger builds the logger described by log_level and log_format
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := util.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log_level")
	}
	return util.NewLoggerWithOutput(c.ShouldUseJSONLogs(), level, os.Stderr).
		Named(c.AppName), nil
}

// ModelOptions maps the query section and log to model options
func (c *Config) ModelOptions(log *zap.Logger) []core.Option {
	opts := []core.Option{
		core.WithRetryDelay(c.Query.RetryDelay),
		core.WithBulkBatchSize(c.Query.BulkBatchSize),
		core.WithKeyCacheSize(c.Query.KeyCacheSize),
	}
	if log != nil {
		opts = append(opts, core.WithLogger(log))
	}
	return opts
}

// Connect opens a connector for the mongo section. The application name is
// used when mongo.app_name is not set.
func (c *Config) Connect(log *zap.Logger) (*mongodriver.Connector, error) {
	mc := c.Mongo
	if mc.AppName == "" {
		mc.AppName = c.AppName
	}

	var opts []mongodriver.Option
	if log != nil {
		opts = append(opts, mongodriver.WithLogger(log))
	}

	conn, err := mongodriver.Open(mc, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	return conn, nil
}

// GetConfigName returns the name of the config file for GO_ENV
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
