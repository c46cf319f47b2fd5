// Package common provides the configuration and wiring shared by the
// cardledger binaries.
package common

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Kinds of remote store
const (
	RemoteNone   = "none"
	RemoteMemory = "memory"
	RemoteSqlite = "sqlite"
	RemoteGCS    = "gcs"
)

const (
	kEnvPrefix = "CARDLEDGER_"
)

var (
	ErrBadRemote    = errors.New("common: Remote must be none, memory, sqlite or gcs.")
	ErrNoRemotePath = errors.New("common: Remote sqlite needs remote_db.")
	ErrNoBucket     = errors.New("common: Remote gcs needs bucket.")
)

// Config holds the settings of a binary. Settings come from a YAML file,
// then from the environment, optionally loaded from a .env file, then from
// command line flags; later sources win.
type Config struct {
	Profile string `yaml:"profile"`
	// Remote path prefix
	Prefix string `yaml:"prefix"`
	// sqlite file of the local cache. Empty means an in memory cache.
	CacheDb string `yaml:"cache_db"`
	// One of none, memory, sqlite or gcs
	Remote string `yaml:"remote"`
	// sqlite file shared as the remote when Remote is sqlite
	RemoteDb string `yaml:"remote_db"`
	// GCS bucket when Remote is gcs
	Bucket string `yaml:"bucket"`
	// Service account key file for GCS. Empty means Application Default
	// Credentials.
	Credentials string `yaml:"credentials"`
	// How often polling remotes check for changes, e.g. "5s"
	PollInterval string `yaml:"poll_interval"`
	LogLevel     string `yaml:"log_level"`
	// Address ledgerd binds
	Http string `yaml:"http"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Profile:  "default",
		Prefix:   "ledgers",
		Remote:   RemoteNone,
		LogLevel: "info",
		Http:     ":8080",
	}
}

// Poll returns PollInterval as a duration. Zero means the remote's default.
func (c *Config) Poll() (time.Duration, error) {
	if c.PollInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.PollInterval)
}

// Validate returns an error if the remote settings are inconsistent.
func (c *Config) Validate() error {
	switch c.Remote {
	case RemoteNone, RemoteMemory:
	case RemoteSqlite:
		if c.RemoteDb == "" {
			return ErrNoRemotePath
		}
	case RemoteGCS:
		if c.Bucket == "" {
			return ErrNoBucket
		}
	default:
		return ErrBadRemote
	}
	if _, err := c.Poll(); err != nil {
		return fmt.Errorf("common: bad poll_interval: %w", err)
	}
	return nil
}

// ReadYAML overlays the settings in the YAML file at path.
func (c *Config) ReadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// ReadEnv overlays the CARDLEDGER_* variables of the environment, e.g.
// CARDLEDGER_PROFILE or CARDLEDGER_CACHE_DB. If envFile is non-empty and
// exists, its variables are loaded into the environment first without
// overriding variables already set.
func (c *Config) ReadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	for name, field := range c.fields() {
		if value, ok := os.LookupEnv(kEnvPrefix + strings.ToUpper(name)); ok {
			*field = value
		}
	}
	return nil
}

// Flags holds the command line overrides of a Config.
type Flags struct {
	ConfigFile string
	EnvFile    string
	values     map[string]*string
}

// RegisterFlags registers the flags of every Config setting along with
// -config and -env on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	result := &Flags{values: make(map[string]*string)}
	fs.StringVar(&result.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&result.EnvFile, "env", ".env", "Environment file")
	for name := range (&Config{}).fields() {
		result.values[name] = fs.String(name, "", "Overrides "+name)
	}
	return result
}

// Load builds the configuration from defaults, the YAML file, the
// environment and the flags given on the command line.
func (f *Flags) Load() (*Config, error) {
	config := Default()
	if f.ConfigFile != "" {
		if err := config.ReadYAML(f.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := config.ReadEnv(f.EnvFile); err != nil {
		return nil, err
	}
	fields := config.fields()
	for name, value := range f.values {
		if *value != "" {
			*fields[name] = *value
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) fields() map[string]*string {
	return map[string]*string{
		"profile":       &c.Profile,
		"prefix":        &c.Prefix,
		"cache_db":      &c.CacheDb,
		"remote":        &c.Remote,
		"remote_db":     &c.RemoteDb,
		"bucket":        &c.Bucket,
		"credentials":   &c.Credentials,
		"poll_interval": &c.PollInterval,
		"log_level":     &c.LogLevel,
		"http":          &c.Http,
	}
}
