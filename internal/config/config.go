// Package config loads pagepilot configuration from defaults, an optional
// YAML file and PAGEPILOT_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAGEPILOT_CONTROLLER_URL
const EnvPrefix = "PAGEPILOT"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig
	Browser    BrowserConfig
	Controller ControllerConfig
	Server     ServerConfig
	Capture    CaptureConfig
	Executor   ExecutorConfig
	Dispatch   DispatchConfig
	Record     RecordConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// BrowserConfig holds browser launch configuration.
type BrowserConfig struct {
	Width      int
	Height     int
	Headless   bool
	Stealth    bool
	NoSandbox  bool
	ProfileDir string
	ControlURL string
	Timeout    time.Duration

	// ActionTimeout bounds waiting for a click target to become interactable
	ActionTimeout time.Duration
}

// ControllerConfig holds the remote controller connection.
type ControllerConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	TaskTimeout      time.Duration
}

// ServerConfig holds the relay HTTP server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CaptureConfig holds page state capture configuration.
type CaptureConfig struct {
	MinInterval time.Duration
	MaxWidth    int
}

// ExecutorConfig holds action settle timings.
type ExecutorConfig struct {
	ScrollSettle      time.Duration
	ClickSettle       time.Duration
	BoundaryTolerance float64
}

// DispatchConfig holds dispatcher timings.
type DispatchConfig struct {
	PingTimeout  time.Duration
	InjectSettle time.Duration
}

// RecordConfig holds GIF recording configuration.
type RecordConfig struct {
	FPS       int
	MaxWidth  uint
	MaxFrames int
}

// Load loads configuration from file and environment variables. An empty
// path looks for pagepilot.yaml in the working directory and ./config.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pagepilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.Browser.Width = v.GetInt("browser.width")
	config.Browser.Height = v.GetInt("browser.height")
	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.Stealth = v.GetBool("browser.stealth")
	config.Browser.NoSandbox = v.GetBool("browser.no_sandbox")
	config.Browser.ProfileDir = v.GetString("browser.profile_dir")
	config.Browser.ControlURL = v.GetString("browser.control_url")
	config.Browser.Timeout = v.GetDuration("browser.timeout")
	config.Browser.ActionTimeout = v.GetDuration("browser.action_timeout")

	config.Controller.URL = v.GetString("controller.url")
	config.Controller.HandshakeTimeout = v.GetDuration("controller.handshake_timeout")
	config.Controller.TaskTimeout = v.GetDuration("controller.task_timeout")

	config.Server.Addr = v.GetString("server.addr")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	config.Capture.MinInterval = v.GetDuration("capture.min_interval")
	config.Capture.MaxWidth = v.GetInt("capture.max_width")

	config.Executor.ScrollSettle = v.GetDuration("executor.scroll_settle")
	config.Executor.ClickSettle = v.GetDuration("executor.click_settle")
	config.Executor.BoundaryTolerance = v.GetFloat64("executor.boundary_tolerance")

	config.Dispatch.PingTimeout = v.GetDuration("dispatch.ping_timeout")
	config.Dispatch.InjectSettle = v.GetDuration("dispatch.inject_settle")

	config.Record.FPS = v.GetInt("record.fps")
	config.Record.MaxWidth = v.GetUint("record.max_width")
	config.Record.MaxFrames = v.GetInt("record.max_frames")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.action_timeout", "5s")

	v.SetDefault("controller.url", "ws://localhost:8000/ws/agent")
	v.SetDefault("controller.handshake_timeout", "10s")
	v.SetDefault("controller.task_timeout", "10m")

	v.SetDefault("server.addr", "127.0.0.1:8765")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("capture.min_interval", "1s")
	v.SetDefault("capture.max_width", 1280)

	v.SetDefault("executor.scroll_settle", "700ms")
	v.SetDefault("executor.click_settle", "300ms")
	v.SetDefault("executor.boundary_tolerance", 2)

	v.SetDefault("dispatch.ping_timeout", "1s")
	v.SetDefault("dispatch.inject_settle", "100ms")

	v.SetDefault("record.fps", 1)
	v.SetDefault("record.max_width", 800)
	v.SetDefault("record.max_frames", 300)
}

// Validate rejects values the components cannot run with
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Capture.MinInterval <= 0 {
		return fmt.Errorf("capture.min_interval must be positive, got %s", c.Capture.MinInterval)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.Width, c.Browser.Height)
	}
	if !strings.HasPrefix(c.Controller.URL, "ws://") && !strings.HasPrefix(c.Controller.URL, "wss://") {
		return fmt.Errorf("controller.url must be a ws:// or wss:// URL, got %q", c.Controller.URL)
	}
	return nil
}
