// Package dmxconfig loads load-time tunables for the dmx package from a
// TOML file, the same way appconfig loads app.toml: a small typed struct,
// a path-search loader, and a Validate step that rejects bad values before
// they reach callers.
package dmxconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"miren.dev/dmx"
)

// DefaultConfigPath is where Load walks upward from the working directory
// looking for a config file, mirroring appconfig.AppConfigPath.
const DefaultConfigPath = ".miren/dmx.toml"

// CodecDefault records a default Save version for an encoding name. The
// value is read back through PreferredVersion; Datamodel.Save itself
// always takes an explicit version and does not consult it.
type CodecDefault struct {
	Encoding string `toml:"encoding"`
	Version  int    `toml:"version"`
}

// Config is the load-time tunable set: a default DeferredMode and a
// default Save version per encoding. dmx.Load and Datamodel.Save do not
// read it; a caller resolves these values (ResolveDeferredMode,
// PreferredVersion) and passes them explicitly.
type Config struct {
	DeferredMode  string         `toml:"deferred_mode"`
	CodecDefaults []CodecDefault `toml:"codec_defaults"`
}

// Load walks up from the current working directory looking for
// DefaultConfigPath, the same search appconfig.LoadAppConfig does. A
// missing file anywhere up the tree returns a zero Config and a nil error,
// not a sentinel -- there's nothing wrong with running dmx unconfigured.
func Load() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, DefaultConfigPath)
		if cfg, err := LoadFile(path); err == nil {
			return cfg, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return &Config{}, nil
		}
		dir = parent
	}
}

// LoadFile decodes exactly the file at path, with no directory search.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes cfg from raw TOML bytes, for callers that already have the
// document in memory (tests, embedded defaults).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects a DeferredMode name ResolveDeferredMode wouldn't
// recognize and a CodecDefaults entry missing its encoding name.
func (c *Config) Validate() error {
	if c.DeferredMode != "" {
		if _, err := c.ResolveDeferredMode(); err != nil {
			return err
		}
	}
	for i, cd := range c.CodecDefaults {
		if cd.Encoding == "" {
			return fmt.Errorf("codec_defaults[%d]: encoding is required", i)
		}
		if cd.Version <= 0 {
			return fmt.Errorf("codec_defaults[%d] (%s): version must be positive", i, cd.Encoding)
		}
	}
	return nil
}

// ResolveDeferredMode maps the configured mode name to a dmx.DeferredMode,
// defaulting to DeferredAutomatic when unset -- the same "useful by
// default, safe to override" stance appconfig's ResolveDefaults takes for
// service concurrency.
func (c *Config) ResolveDeferredMode() (dmx.DeferredMode, error) {
	switch c.DeferredMode {
	case "", "automatic":
		return dmx.DeferredAutomatic, nil
	case "disabled":
		return dmx.DeferredDisabled, nil
	case "always":
		return dmx.DeferredAlways, nil
	default:
		return 0, fmt.Errorf("deferred_mode: unrecognized value %q, must be \"disabled\", \"automatic\", or \"always\"", c.DeferredMode)
	}
}

// PreferredVersion reports the configured default Save version for an
// encoding name, if one was set.
func (c *Config) PreferredVersion(encoding string) (int, bool) {
	for _, cd := range c.CodecDefaults {
		if cd.Encoding == encoding {
			return cd.Version, true
		}
	}
	return 0, false
}
