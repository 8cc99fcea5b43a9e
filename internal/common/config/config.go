// Package config provides configuration management for the rendering resource
// manager. It supports loading configuration from environment variables,
// config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Launcher modes.
const (
	LauncherSlurm   = "slurm"
	LauncherProcess = "process"
	LauncherDocker  = "docker"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Slurm    SlurmConfig    `mapstructure:"slurm"`
	Launcher LauncherConfig `mapstructure:"launcher"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Session  SessionConfig  `mapstructure:"session"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration. The sqlite3 driver
// uses Path; the pgx driver uses the host/port/user/password/dbName fields.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite3 or pgx
	Path     string `mapstructure:"path"`   // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
	SeedPath string `mapstructure:"seedPath"` // optional YAML file of renderer configs loaded at boot
}

// SlurmConfig holds the cluster control channel configuration. The unprefixed
// SLURM_* environment variables are recognized for compatibility with
// existing deployments.
type SlurmConfig struct {
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	HostDomain    string `mapstructure:"hostDomain"`
	ServiceURL    string `mapstructure:"serviceUrl"`
	Queue         string `mapstructure:"queue"`
	Project       string `mapstructure:"project"`
	DefaultModule string `mapstructure:"defaultModule"`
	JobNamePrefix string `mapstructure:"jobNamePrefix"`
	OutputPrefix  string `mapstructure:"outputPrefix"`
	OutFile       string `mapstructure:"outFile"`
	ErrFile       string `mapstructure:"errFile"`
}

// LauncherConfig selects how renderers are launched.
type LauncherConfig struct {
	Mode    string `mapstructure:"mode"`    // slurm, process, or docker
	WorkDir string `mapstructure:"workDir"` // output directory for locally forked renderers
}

// DockerConfig holds Docker client configuration for the container launcher.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// RendererConfig holds the renderer probe configuration.
type RendererConfig struct {
	DefaultPort    int    `mapstructure:"defaultPort"`    // port renderers are told to listen on; 0 allocates per session
	ReadinessPath  string `mapstructure:"readinessPath"`  // vocabulary endpoint path
	RequestTimeout int    `mapstructure:"requestTimeout"` // probe timeout in seconds
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	KeepAliveTimeout int `mapstructure:"keepAliveTimeout"` // default idle horizon in seconds
	SweepInterval    int `mapstructure:"sweepInterval"`    // sweeper period in seconds
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns the probe timeout as a time.Duration.
func (r *RendererConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(r.RequestTimeout) * time.Second
}

// KeepAliveTimeoutDuration returns the idle horizon as a time.Duration.
func (s *SessionConfig) KeepAliveTimeoutDuration() time.Duration {
	return time.Duration(s.KeepAliveTimeout) * time.Second
}

// SweepIntervalDuration returns the sweeper period as a time.Duration.
func (s *SessionConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("RRM_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - sqlite file unless a postgres host is configured
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "rrm.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rrm")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "rrm")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)
	v.SetDefault("database.seedPath", "")

	// Cluster control defaults
	v.SetDefault("slurm.username", "")
	v.SetDefault("slurm.password", "")
	v.SetDefault("slurm.host", "")
	v.SetDefault("slurm.port", 22)
	v.SetDefault("slurm.hostDomain", "")
	v.SetDefault("slurm.serviceUrl", "")
	v.SetDefault("slurm.queue", "")
	v.SetDefault("slurm.project", "")
	v.SetDefault("slurm.defaultModule", "")
	v.SetDefault("slurm.jobNamePrefix", "")
	v.SetDefault("slurm.outputPrefix", "")
	v.SetDefault("slurm.outFile", ".out")
	v.SetDefault("slurm.errFile", ".err")

	// Launcher defaults
	v.SetDefault("launcher.mode", LauncherSlurm)
	v.SetDefault("launcher.workDir", os.TempDir())

	// Docker defaults
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.apiVersion", "1.41")

	// Renderer probe defaults
	v.SetDefault("renderer.defaultPort", 3000)
	v.SetDefault("renderer.readinessPath", "registry")
	v.SetDefault("renderer.requestTimeout", 2)

	// Session lifecycle defaults
	v.SetDefault("session.keepAliveTimeout", 1000)
	v.SetDefault("session.sweepInterval", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "rrm")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix RRM_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/rrm/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("RRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy unprefixed environment variables recognized by earlier
	// deployments of the service. They take precedence over the RRM_
	// prefixed names, which AutomaticEnv cannot derive for camelCase keys
	// anyway.
	_ = v.BindEnv("slurm.username", "SLURM_USERNAME", "RRM_SLURM_USERNAME")
	_ = v.BindEnv("slurm.password", "SLURM_PASSWORD", "RRM_SLURM_PASSWORD")
	_ = v.BindEnv("slurm.host", "SLURM_HOST", "RRM_SLURM_HOST")
	_ = v.BindEnv("slurm.hostDomain", "SLURM_HOST_DOMAIN", "RRM_SLURM_HOST_DOMAIN")
	_ = v.BindEnv("slurm.serviceUrl", "SLURM_SERVICE_URL", "RRM_SLURM_SERVICE_URL")
	_ = v.BindEnv("slurm.queue", "SLURM_QUEUE", "RRM_SLURM_QUEUE")
	_ = v.BindEnv("slurm.project", "SLURM_PROJECT", "RRM_SLURM_PROJECT")
	_ = v.BindEnv("slurm.defaultModule", "SLURM_DEFAULT_MODULE", "RRM_SLURM_DEFAULT_MODULE")
	_ = v.BindEnv("slurm.jobNamePrefix", "SLURM_JOB_NAME_PREFIX", "RRM_SLURM_JOB_NAME_PREFIX")
	_ = v.BindEnv("slurm.outputPrefix", "SLURM_OUTPUT_PREFIX", "RRM_SLURM_OUTPUT_PREFIX")
	_ = v.BindEnv("slurm.outFile", "SLURM_OUT_FILE", "RRM_SLURM_OUT_FILE")
	_ = v.BindEnv("slurm.errFile", "SLURM_ERR_FILE", "RRM_SLURM_ERR_FILE")
	_ = v.BindEnv("renderer.requestTimeout", "REQUEST_TIMEOUT", "RRM_RENDERER_REQUEST_TIMEOUT")
	_ = v.BindEnv("renderer.defaultPort", "RRM_RENDERER_DEFAULT_PORT")
	_ = v.BindEnv("renderer.readinessPath", "RRM_RENDERER_READINESS_PATH")
	_ = v.BindEnv("session.keepAliveTimeout", "KEEP_ALIVE_TIMEOUT", "RRM_SESSION_KEEP_ALIVE_TIMEOUT")
	_ = v.BindEnv("session.sweepInterval", "KEEP_ALIVE_POLL_INTERVAL", "RRM_SESSION_SWEEP_INTERVAL")
	_ = v.BindEnv("database.seedPath", "RRM_DATABASE_SEED_PATH")
	_ = v.BindEnv("launcher.workDir", "RRM_LAUNCHER_WORK_DIR")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rrm/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case "pgx":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the pgx driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the pgx driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the pgx driver")
		}
	default:
		errs = append(errs, "database.driver must be sqlite3 or pgx")
	}

	// Launcher validation - the slurm mode needs the control channel
	switch cfg.Launcher.Mode {
	case LauncherSlurm:
		if cfg.Slurm.Host == "" {
			errs = append(errs, "slurm.host is required when launcher.mode is slurm")
		}
		if cfg.Slurm.Username == "" {
			errs = append(errs, "slurm.username is required when launcher.mode is slurm")
		}
	case LauncherProcess, LauncherDocker:
		// No cluster credentials required
	default:
		errs = append(errs, "launcher.mode must be one of: slurm, process, docker")
	}

	// Port 0 means allocate a fresh port per session, for launchers that
	// share the manager's host.
	if cfg.Renderer.DefaultPort < 0 || cfg.Renderer.DefaultPort > 65535 {
		errs = append(errs, "renderer.defaultPort must be between 0 and 65535")
	}
	if cfg.Renderer.RequestTimeout <= 0 {
		errs = append(errs, "renderer.requestTimeout must be positive")
	}

	if cfg.Session.KeepAliveTimeout <= 0 {
		errs = append(errs, "session.keepAliveTimeout must be positive")
	}
	if cfg.Session.SweepInterval <= 0 {
		errs = append(errs, "session.sweepInterval must be positive")
	}

	// NATS validation - optional (uses in-memory event bus if not set)
	// No validation needed - empty URL means use in-memory

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
