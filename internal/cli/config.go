package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Config is the strata configuration file, discovered at
// $STRATA_CONFIG, falling back to the XDG config search path.
type Config struct {
	// DataDir holds the layer store and metadata graph.
	DataDir string `yaml:"dataDir"`
	// Listen is the API server address.
	Listen string `yaml:"listen"`
	// Token authenticates outbound operations against remotes.
	Token string `yaml:"token"`

	Auth struct {
		// Secret validates inbound bearer tokens.
		Secret string `yaml:"secret"`
		// Anonymous grants full capabilities without a token. Development
		// only.
		Anonymous bool `yaml:"anonymous"`
	} `yaml:"auth"`

	Transfer struct {
		// TUSThreshold is the payload size switching pushes to resumable
		// upload.
		TUSThreshold int64 `yaml:"tusThreshold"`
		// ChunkSize is the resumable upload chunk size.
		ChunkSize int64 `yaml:"chunkSize"`
	} `yaml:"transfer"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	var cfg Config
	cfg.DataDir = filepath.Join(xdg.DataHome, "strata")
	cfg.Listen = ":6363"
	return cfg
}

// LoadConfig reads the configuration file, tolerating its absence.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("STRATA_CONFIG")
	if path == "" {
		found, err := xdg.SearchConfigFile(filepath.Join("strata", "config.yaml"))
		if err != nil {
			return cfg, nil
		}
		path = found
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
