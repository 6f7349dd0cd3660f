// Package config holds the settings for an axon service.
//
// A configuration file can be YAML (".yaml" or ".yml"), TOML
// (".toml"), or JSON (".json").  Command-line flags usually override
// what the file says.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gorhill/cronexpr"
	"gopkg.in/yaml.v2"
)

// Config is a service configuration.
type Config struct {
	// MaxConcurrent limits how many processors run at once.
	MaxConcurrent int `yaml:"maxConcurrent" toml:"max-concurrent" json:"maxConcurrent"`

	// ProcessorPool is the size of the recycled processor pool.
	ProcessorPool int `yaml:"processorPool" toml:"processor-pool" json:"processorPool"`

	Verbose bool `yaml:"verbose" toml:"verbose" json:"verbose"`

	// Graph is the filename of the YAML graph document.
	Graph string `yaml:"graph" toml:"graph" json:"graph"`

	// Store is a BoltDB filename for runs.  Empty means runs
	// aren't kept.
	Store string `yaml:"store" toml:"store" json:"store"`

	// HTTPPort is the HTTP listen address.  Empty disables HTTP.
	HTTPPort string `yaml:"httpPort" toml:"http-port" json:"httpPort"`

	// WebSockets adds /ws/api to the HTTP server.
	WebSockets bool `yaml:"webSockets" toml:"websockets" json:"webSockets"`

	// Libraries is the directory for script libraries.
	Libraries string `yaml:"libraries" toml:"libraries" json:"libraries"`

	MQTT *MQTT `yaml:"mqtt,omitempty" toml:"mqtt" json:"mqtt,omitempty"`

	Schedules []*Schedule `yaml:"schedules,omitempty" toml:"schedules" json:"schedules,omitempty"`

	// SQL maps database names to connection settings.  The
	// databases are available to ForQuery sources.
	SQL map[string]*Database `yaml:"sql,omitempty" toml:"sql" json:"sql,omitempty"`
}

// MQTT configures publishing finished runs to a broker.
type MQTT struct {
	Broker   string `yaml:"broker" toml:"broker" json:"broker"`
	ClientId string `yaml:"clientId" toml:"client-id" json:"clientId"`

	// Topic gets the finished runs as JSON.
	Topic string `yaml:"topic" toml:"topic" json:"topic"`
	QoS   byte   `yaml:"qos" toml:"qos" json:"qos"`

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint `yaml:"quiesce" toml:"quiesce" json:"quiesce"`
}

// Schedule solves a neuron whenever the cron expression fires.
type Schedule struct {
	Cron   string `yaml:"cron" toml:"cron" json:"cron"`
	Neuron string `yaml:"neuron" toml:"neuron" json:"neuron"`
}

type Database struct {
	// Driver defaults to "sqlite".
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn" json:"dsn"`
}

// Default returns the configuration used when there's no file.
func Default() *Config {
	return &Config{
		MaxConcurrent: 8,
		ProcessorPool: 64,
		HTTPPort:      ":8080",
		Libraries:     ".",
	}
}

// Load reads the file on top of Default.
func Load(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c := Default()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bs, c)
	case ".toml":
		err = toml.Unmarshal(bs, c)
	case ".json":
		err = json.Unmarshal(bs, c)
	default:
		return nil, fmt.Errorf("unknown config format '%s'", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", filename, err)
	}
	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// Validate checks what can be checked without opening anything.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return errors.New("maxConcurrent must be positive")
	}
	if c.ProcessorPool < 0 {
		return errors.New("processorPool can't be negative")
	}
	if c.WebSockets && c.HTTPPort == "" {
		return errors.New("webSockets requires an HTTP port")
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt needs a broker")
		}
		if c.MQTT.Topic == "" {
			return errors.New("mqtt needs a topic")
		}
		if 2 < c.MQTT.QoS {
			return fmt.Errorf("bad mqtt qos %d", c.MQTT.QoS)
		}
	}
	for i, s := range c.Schedules {
		if s.Neuron == "" {
			return fmt.Errorf("schedule %d has no neuron", i)
		}
		if _, err := cronexpr.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedule %d: %w", i, err)
		}
	}
	for name, db := range c.SQL {
		if db == nil || db.DSN == "" {
			return fmt.Errorf("database %s has no dsn", name)
		}
	}
	return nil
}
