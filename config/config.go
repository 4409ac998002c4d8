// Package config resolves probe configuration from the environment,
// an optional .env file and an optional JSON credentials file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultBaseURL       = "http://localhost:3000"
	DefaultTimeout       = 60 * time.Second
	DefaultSlowStep      = 10 * time.Second
	DefaultScreenshotDir = "screenshots"
	DefaultViewport      = "desktop"
	DefaultLogLevel      = "info"
)

// Config is the resolved probe configuration.
type Config struct {
	// BaseURL of the deployed application under probe.
	BaseURL string
	// Credentials for auth flows.
	Email    string
	Password string
	// Headless controls the launched browser. Attaching to a running
	// browser (AttachPort > 0) bypasses launching entirely.
	Headless   bool
	ChromePath string
	AttachHost string
	AttachPort int
	// Artifacts.
	ScreenshotDir string
	// Run shape.
	Viewport string
	Timeout  time.Duration
	SlowStep time.Duration
	LogLevel string
}

// Load resolves the configuration: built-in defaults, then a .env file
// if present, then WEBPROBE_* environment variables on top.
func Load() (*Config, error) {
	// A missing .env file is fine; explicit environment always wins
	// because godotenv does not overwrite existing variables.
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL:       DefaultBaseURL,
		Headless:      true,
		AttachHost:    "localhost",
		ScreenshotDir: DefaultScreenshotDir,
		Viewport:      DefaultViewport,
		Timeout:       DefaultTimeout,
		SlowStep:      DefaultSlowStep,
		LogLevel:      DefaultLogLevel,
	}

	if v := os.Getenv("WEBPROBE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("WEBPROBE_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv("WEBPROBE_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("WEBPROBE_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parsing WEBPROBE_HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	if v := os.Getenv("WEBPROBE_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("WEBPROBE_ATTACH_HOST"); v != "" {
		cfg.AttachHost = v
	}
	if v := os.Getenv("WEBPROBE_ATTACH_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing WEBPROBE_ATTACH_PORT: %w", err)
		}
		cfg.AttachPort = p
	}
	if v := os.Getenv("WEBPROBE_SCREENSHOT_DIR"); v != "" {
		cfg.ScreenshotDir = v
	}
	if v := os.Getenv("WEBPROBE_VIEWPORT"); v != "" {
		cfg.Viewport = v
	}
	if v := os.Getenv("WEBPROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing WEBPROBE_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("WEBPROBE_SLOW_STEP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing WEBPROBE_SLOW_STEP: %w", err)
		}
		cfg.SlowStep = d
	}
	if v := os.Getenv("WEBPROBE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LoadCredentials overrides the credentials from a JSON file of the
// form {"email": "...", "password": "..."}.
func (c *Config) LoadCredentials(path string) error {
	buf, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(buf, &creds); err != nil {
		return fmt.Errorf("parsing credentials file %q: %w", path, err)
	}
	if creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("credentials file %q must carry email and password", path)
	}
	c.Email = creds.Email
	c.Password = creds.Password
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must be set")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must be http or https", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
