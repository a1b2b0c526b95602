// Package config loads the bridge's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/levenlabs/go-llog"
)

// Gerrit holds the Gerrit SSH/REST connection settings.
type Gerrit struct {
	Hostname     string `yaml:"hostname"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	PrivKeyPath  string `yaml:"priv_key_path"`
	HostKeyPath  string `yaml:"host_key_path"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	RESTPassword string `yaml:"rest_password"`

	// KeepaliveSeconds and KeepaliveMaxMissed configure the SSH-level
	// keepalive described in spec.md §4.3; defaults applied in Load.
	KeepaliveSeconds   int `yaml:"keepalive_seconds"`
	KeepaliveMaxMissed int `yaml:"keepalive_max_missed"`
}

// Spark holds the chat service's bot identity and transport settings.
// Named to match spec.md §6's literal schema.
type Spark struct {
	BotToken string `yaml:"bot_token"`
	BotID    string `yaml:"bot_id"`
	// WebhookURL is the public URL registered with the chat service;
	// ListenAddr is the local address the webhook listener binds, e.g.
	// ":8080" (they differ whenever the bridge sits behind a proxy/LB).
	WebhookURL string `yaml:"webhook_url"`
	ListenAddr string `yaml:"listen_addr"`
	Endpoint   string `yaml:"endpoint"`
	Secret     string `yaml:"secret"`
	SQS        string `yaml:"sqs"`
	SQSRegion  string `yaml:"sqs_region"`

	// BotUsernames lists Gerrit usernames treated as non-human authors
	// for is_human (spec.md §9's Open Question, resolved in DESIGN.md).
	BotUsernames []string `yaml:"bot_usernames"`
}

// Bot holds bridge-wide bookkeeping settings.
type Bot struct {
	StatePath       string `yaml:"state_path"`
	MsgExpiration   int    `yaml:"msg_expiration"`
	DebugEventsPath string `yaml:"debug_events_path"`
}

// Format holds Formatter Runtime settings.
type Format struct {
	ScriptPath string `yaml:"script_path"`
}

// Config is the complete, parsed configuration file.
type Config struct {
	Gerrit Gerrit `yaml:"gerrit"`
	Spark  Spark  `yaml:"spark"`
	Bot    Bot    `yaml:"bot"`
	Format Format `yaml:"format"`
}

const (
	defaultPort               = 29418
	defaultKeepaliveSeconds   = 30
	defaultKeepaliveMaxMissed = 3
)

// Load reads and parses the YAML config file at path. Any error here --
// missing file, malformed YAML, a required field left empty -- is a
// configuration error and fatal at startup per spec.md §7.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Gerrit.Hostname == "" {
		missing = append(missing, "gerrit.hostname")
	}
	if c.Gerrit.Username == "" {
		missing = append(missing, "gerrit.username")
	}
	if c.Gerrit.PrivKeyPath == "" {
		missing = append(missing, "gerrit.priv_key_path")
	}
	if c.Spark.BotToken == "" {
		missing = append(missing, "spark.bot_token")
	}
	if c.Bot.StatePath == "" {
		missing = append(missing, "bot.state_path")
	}
	if c.Format.ScriptPath == "" {
		missing = append(missing, "format.script_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config fields: %v", missing)
	}
	if c.Spark.WebhookURL == "" && c.Spark.SQS == "" {
		return fmt.Errorf("config must set either spark.webhook_url or spark.sqs")
	}
	if c.Spark.WebhookURL != "" && c.Spark.ListenAddr == "" {
		return fmt.Errorf("spark.listen_addr is required when spark.webhook_url is set")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Gerrit.Port == 0 {
		c.Gerrit.Port = defaultPort
	}
	if c.Gerrit.KeepaliveSeconds == 0 {
		c.Gerrit.KeepaliveSeconds = defaultKeepaliveSeconds
	}
	if c.Gerrit.KeepaliveMaxMissed == 0 {
		c.Gerrit.KeepaliveMaxMissed = defaultKeepaliveMaxMissed
	}
	if c.Spark.Endpoint == "" {
		llog.Debug("spark.endpoint unset, webhook self-registration disabled")
	}
}
