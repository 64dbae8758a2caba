package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"phasegate/internal/logging"
)

// FileName is the workspace configuration file.
const FileName = "phasegate.yml"

// Config models phasegate.yml.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`
	Engine struct {
		EvaluationTimeout string `yaml:"evaluation_timeout"`
	} `yaml:"engine"`
	Gates struct {
		Options                 GateOptions `yaml:"options"`
		ReleasedDrawingStatuses []string    `yaml:"released_drawing_statuses"`
		OpenRFIStatuses         []string    `yaml:"open_rfi_statuses"`
		DeliveredStatuses       []string    `yaml:"delivered_statuses"`
		MaxListedIDs            int         `yaml:"max_listed_ids"`
	} `yaml:"gates"`
	Log    logging.Config `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// GateOptions are the strictness defaults applied when a caller does not
// supply its own.
type GateOptions struct {
	RequireCloseoutDocs       bool `yaml:"require_closeout_docs"`
	RequireFinalInspection    bool `yaml:"require_final_inspection"`
	RequireClientAcceptance   bool `yaml:"require_client_acceptance"`
	CheckMaterialAvailability bool `yaml:"check_material_availability"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pg config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the default config when the file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DSN == "" && os.Getenv("DATABASE_URL") == "" {
			return fmt.Errorf("config.store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.store.driver must be one of sqlite, postgres, memory")
	}
	if c.Engine.EvaluationTimeout != "" {
		d, err := time.ParseDuration(c.Engine.EvaluationTimeout)
		if err != nil {
			return fmt.Errorf("config.engine.evaluation_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("config.engine.evaluation_timeout must not be negative")
		}
	}
	if len(c.Gates.ReleasedDrawingStatuses) == 0 {
		return fmt.Errorf("config.gates.released_drawing_statuses is required")
	}
	if len(c.Gates.OpenRFIStatuses) == 0 {
		return fmt.Errorf("config.gates.open_rfi_statuses is required")
	}
	if len(c.Gates.DeliveredStatuses) == 0 {
		return fmt.Errorf("config.gates.delivered_statuses is required")
	}
	for name, list := range map[string][]string{
		"released_drawing_statuses": c.Gates.ReleasedDrawingStatuses,
		"open_rfi_statuses":         c.Gates.OpenRFIStatuses,
		"delivered_statuses":        c.Gates.DeliveredStatuses,
	} {
		for _, s := range list {
			if s == "" {
				return fmt.Errorf("config.gates.%s contains an empty status", name)
			}
		}
	}
	if c.Gates.MaxListedIDs < 0 {
		return fmt.Errorf("config.gates.max_listed_ids must not be negative")
	}
	return nil
}

// EvaluationTimeout is the per-evaluation deadline; zero disables it.
func (c *Config) EvaluationTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Engine.EvaluationTimeout)
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  driver: sqlite

engine:
  evaluation_timeout: 10s

gates:
  options:
    require_closeout_docs: true
    require_final_inspection: true
    require_client_acceptance: true
    check_material_availability: false
  released_drawing_statuses: [FFF]
  open_rfi_statuses: [open, pending_response]
  delivered_statuses: [delivered, received]
  max_listed_ids: 10

log:
  level: info
  format: json

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
