package mongodriver

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	DefaultMaxPoolSize = 100
	DefaultTimeout     = 50 * time.Second
)

// Config holds the connection settings.
type Config struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	AppName  string `mapstructure:"app_name"`

	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	Timeout                time.Duration `mapstructure:"timeout"`

	TLS       bool   `mapstructure:"tls"`
	TLSCAFile string `mapstructure:"tls_ca_file"`

	// ReadPreference is one of primary, primaryPreferred, secondary,
	// secondaryPreferred or nearest.
	ReadPreference string `mapstructure:"read_preference"`
}

// ClientOptions turns c into driver options. Driver level retries are
// turned off; failed calls are retried by the caller after a reconnect.
func ClientOptions(c Config) (*options.ClientOptions, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("mongodriver: uri is required")
	}

	co := options.Client().
		ApplyURI(c.URI).
		SetRetryReads(false).
		SetRetryWrites(false).
		SetMaxPoolSize(orDefault(c.MaxPoolSize, DefaultMaxPoolSize)).
		SetServerSelectionTimeout(orDefault(c.ServerSelectionTimeout, DefaultTimeout)).
		SetConnectTimeout(orDefault(c.ConnectTimeout, DefaultTimeout)).
		SetTimeout(orDefault(c.Timeout, DefaultTimeout))

	if c.AppName != "" {
		co.SetAppName(c.AppName)
	}

	if c.ReadPreference != "" {
		mode, err := readpref.ModeFromString(c.ReadPreference)
		if err != nil {
			return nil, fmt.Errorf("mongodriver: read preference: %w", err)
		}
		rp, err := readpref.New(mode)
		if err != nil {
			return nil, fmt.Errorf("mongodriver: read preference: %w", err)
		}
		co.SetReadPreference(rp)
	}

	if c.TLS || c.TLSCAFile != "" {
		tc, err := tlsConfig(c.TLSCAFile)
		if err != nil {
			return nil, err
		}
		co.SetTLSConfig(tc)
	}

	if err := co.Validate(); err != nil {
		return nil, fmt.Errorf("mongodriver: %w", err)
	}
	return co, nil
}

func tlsConfig(caFile string) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return tc, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: reading ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("mongodriver: no certificates found in %s", caFile)
	}
	tc.RootCAs = pool
	return tc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
