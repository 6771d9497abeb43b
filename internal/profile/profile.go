// Package profile holds the runtime configuration loaded from
// environment variables and flags.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chatkit stores session history
	DSN string
	// Driver is the storage driver (sqlite, postgres or memory)
	Driver string
	// Version is the current version of the server
	Version string

	// Workspace identifies this workspace for history scoping and
	// cross-workspace session transfer.
	Workspace string

	// LLM configuration
	LLMEnabled      bool   // CHATKIT_LLM_ENABLED
	LLMAPIKey       string // CHATKIT_LLM_API_KEY
	LLMBaseURL      string // CHATKIT_LLM_BASE_URL (default: https://api.openai.com/v1)
	LLMModel        string // CHATKIT_LLM_MODEL (default: gpt-4o-mini)
	LLMSystemPrompt string // CHATKIT_LLM_SYSTEM_PROMPT

	// Rate limiting for the message endpoint
	RateLimitRPS   float64 // CHATKIT_RATE_LIMIT_RPS (default: 5)
	RateLimitBurst int     // CHATKIT_RATE_LIMIT_BURST (default: 10)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if the LLM agent is enabled and an API key
// or a custom base URL is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMEnabled && (p.LLMAPIKey != "" || p.LLMBaseURL != "")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CHATKIT_* environment variables.
// Values already set (e.g. by flags) are kept.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("CHATKIT_MODE", "demo")
	}
	if p.Addr == "" {
		p.Addr = os.Getenv("CHATKIT_ADDR")
	}
	if p.Port == 0 {
		if port, err := strconv.Atoi(getEnvOrDefault("CHATKIT_PORT", "8230")); err == nil {
			p.Port = port
		}
	}
	if p.Data == "" {
		p.Data = os.Getenv("CHATKIT_DATA")
	}
	if p.DSN == "" {
		p.DSN = os.Getenv("CHATKIT_DSN")
	}
	if p.Driver == "" {
		p.Driver = getEnvOrDefault("CHATKIT_DRIVER", "sqlite")
	}
	if p.Workspace == "" {
		p.Workspace = getEnvOrDefault("CHATKIT_WORKSPACE", "default")
	}

	p.LLMEnabled = getEnvOrDefault("CHATKIT_LLM_ENABLED", "false") == "true"
	p.LLMAPIKey = os.Getenv("CHATKIT_LLM_API_KEY")
	p.LLMBaseURL = getEnvOrDefault("CHATKIT_LLM_BASE_URL", "https://api.openai.com/v1")
	p.LLMModel = getEnvOrDefault("CHATKIT_LLM_MODEL", "gpt-4o-mini")
	p.LLMSystemPrompt = os.Getenv("CHATKIT_LLM_SYSTEM_PROMPT")

	if rps, err := strconv.ParseFloat(getEnvOrDefault("CHATKIT_RATE_LIMIT_RPS", "5"), 64); err == nil {
		p.RateLimitRPS = rps
	}
	if burst, err := strconv.Atoi(getEnvOrDefault("CHATKIT_RATE_LIMIT_BURST", "10")); err == nil {
		p.RateLimitBurst = burst
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if a relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return errors.Errorf("unknown storage driver %q: only 'sqlite', 'postgres' and 'memory' are supported", p.Driver)
	}

	if p.Driver == "memory" {
		return nil
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return errors.Wrap(err, "failed to check data directory")
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("chatkit_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	return nil
}
