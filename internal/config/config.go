package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MinBufferSize = 512
	MaxBufferSize = 1 << 20
)

type Config struct {
	MaxExtractSize int64    `yaml:"max_extract_size"`
	BufferSize     int      `yaml:"buffer_size"`
	Lock           bool     `yaml:"lock"`
	ArchiveMode    FileMode `yaml:"archive_mode"`
	TimeFormat     string   `yaml:"time_format"`
	Sync           bool     `yaml:"sync"`
}

// FileMode is a permission mode written as an octal string in YAML ("0644").
type FileMode os.FileMode

func (m FileMode) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%04o", uint32(m)), nil
}

func (m *FileMode) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimPrefix(strings.TrimPrefix(value.Value, "0o"), "0O")
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("archive_mode %q is not an octal mode", value.Value)
	}
	if v > 0777 {
		return fmt.Errorf("archive_mode %q has bits outside 0777", value.Value)
	}
	*m = FileMode(v)
	return nil
}

// Perm returns the mode as an os.FileMode.
func (m FileMode) Perm() os.FileMode {
	return os.FileMode(m).Perm()
}

func DefaultConfig() *Config {
	return &Config{
		MaxExtractSize: 1 << 30,
		BufferSize:     8 * 1024,
		Lock:           false,
		ArchiveMode:    0666,
		TimeFormat:     "2006-01-02 15:04:05",
		Sync:           true,
	}
}

func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".flatarc", "config.yaml")
}

// Load reads the config from ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

func (c *Config) SaveTo(path string) error {
	path = ExpandPath(path)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the archive layer cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxExtractSize <= 0 {
		errs = append(errs, fmt.Errorf("max_extract_size must be positive, got %d", c.MaxExtractSize))
	}
	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		errs = append(errs, fmt.Errorf("buffer_size must be between %d and %d, got %d",
			MinBufferSize, MaxBufferSize, c.BufferSize))
	}
	if c.TimeFormat == "" {
		errs = append(errs, errors.New("time_format must not be empty"))
	}
	return errors.Join(errs...)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
