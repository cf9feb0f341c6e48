package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattt/mcp-bridge/mcp"
)

var (
	// ErrServerExists is returned when adding a server whose name is taken
	ErrServerExists = errors.New("server already exists")
	// ErrServerNotFound is returned when removing an unknown server
	ErrServerNotFound = errors.New("server not found")
	// ErrInvalidName is returned for server names that cannot be namespaced
	ErrInvalidName = errors.New("invalid server name")
)

const (
	DefaultLogLevel       = "info"
	DefaultDaemonPort     = 3000
	DefaultRequestTimeout = 30 * time.Second
)

// Config is the persisted bridge configuration
type Config struct {
	// Settings holds global options
	Settings Settings `yaml:"settings"`

	// Servers lists the backends the bridge aggregates, in the order they were added
	Servers []Server `yaml:"servers"`
}

// Settings holds global options
type Settings struct {
	// LogLevel is one of trace, debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// DaemonPort is the port the HTTP daemon listens on
	DaemonPort int `yaml:"daemon_port"`

	// RequestTimeout bounds every request sent to a backend
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ValidateArguments checks tool arguments against the backend's input schema before forwarding
	ValidateArguments bool `yaml:"validate_arguments"`
}

// Server describes one backend process
type Server struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Enabled bool              `yaml:"enabled"`
}

// NewServer returns an enabled server descriptor
func NewServer(name, command string, args ...string) Server {
	return Server{
		Name:    name,
		Command: command,
		Args:    args,
		Enabled: true,
	}
}

// UnmarshalYAML defaults Enabled to true when the key is absent
func (s *Server) UnmarshalYAML(value *yaml.Node) error {
	type server Server
	decoded := server{Enabled: true}
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*s = Server(decoded)
	return nil
}

// DefaultConfig returns a configuration with default settings and no servers
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:       DefaultLogLevel,
			DaemonPort:     DefaultDaemonPort,
			RequestTimeout: DefaultRequestTimeout,
		},
		Servers: []Server{},
	}
}

// DefaultPath returns the location of the configuration file in the user's config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error locating config directory: %w", err)
	}
	return filepath.Join(dir, "mcp-bridge", "config.yaml"), nil
}

// LoadFile loads configuration from a file.
// A missing file yields the default configuration.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	config := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config data: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config YAML: %w", err)
	}
	if config.Servers == nil {
		config.Servers = []Server{}
	}
	if config.Settings.RequestTimeout <= 0 {
		config.Settings.RequestTimeout = DefaultRequestTimeout
	}

	return config, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	// Create parent directories if they don't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// AddServer appends a server, rejecting duplicate or ambiguous names
func (c *Config) AddServer(server Server) error {
	if err := mcp.ValidateBackendName(server.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if _, ok := c.Server(server.Name); ok {
		return fmt.Errorf("%w: %s", ErrServerExists, server.Name)
	}
	c.Servers = append(c.Servers, server)
	return nil
}

// RemoveServer removes the named server and returns it
func (c *Config) RemoveServer(name string) (Server, error) {
	for i, s := range c.Servers {
		if s.Name == name {
			c.Servers = append(c.Servers[:i], c.Servers[i+1:]...)
			return s, nil
		}
	}
	return Server{}, fmt.Errorf("%w: %s", ErrServerNotFound, name)
}

// Server looks up a server by name
func (c *Config) Server(name string) (Server, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return Server{}, false
}

// EnabledServers returns the servers that should be connected
func (c *Config) EnabledServers() []Server {
	var enabled []Server
	for _, s := range c.Servers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// ParseLogLevel maps a configured level name to a slog level.
// Unknown names fall back to info.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ImportClaudeDesktop reads servers from a Claude Desktop configuration document.
// Servers are returned sorted by name and enabled.
func ImportClaudeDesktop(r io.Reader) ([]Server, error) {
	var doc struct {
		MCPServers map[string]struct {
			Command string            `json:"command"`
			Args    []string          `json:"args"`
			Env     map[string]string `json:"env"`
		} `json:"mcpServers"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error parsing Claude Desktop config: %w", err)
	}

	servers := make([]Server, 0, len(doc.MCPServers))
	for name, s := range doc.MCPServers {
		servers = append(servers, Server{
			Name:    name,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			Enabled: true,
		})
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })

	return servers, nil
}
