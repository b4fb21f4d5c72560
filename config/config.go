package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

type Config struct {
	ProjectDir       string `json:"project_dir"`
	DataDir          string `json:"data_dir"`
	DBPath           string `json:"db_path"`
	AgentName        string `json:"agent_name"`
	ProjectSkillsDir string `json:"project_skills_dir"`

	LLMProvider    string `json:"llm_provider"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	MaxTokens      int    `json:"max_tokens"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	// Trading defaults used by the sizing tool and the size command
	DefaultSymbol       string  `json:"default_symbol"`
	DefaultExchange     string  `json:"default_exchange"`
	DefaultInterval     string  `json:"default_interval"`
	DefaultPositionSize float64 `json:"default_position_size"`
	MaxLeverage         float64 `json:"max_leverage"`
	AvailableBalance    float64 `json:"available_balance"`
	ProfileCacheSeconds int     `json:"profile_cache_seconds"`

	// Agent loop
	MaxHITLRounds int      `json:"max_hitl_rounds"`
	MaxSteps      int      `json:"max_steps"`
	ModelRetries  int      `json:"model_retries"`
	InterruptOn   []string `json:"interrupt_on"`

	Debug    bool   `json:"debug"`
	LogLevel string `json:"log_level"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot returns defaults with every path rooted at root.
// It does not read the environment.
func DefaultConfigWithRoot(root string) *Config {
	dataDir := filepath.Join(root, "data")
	return &Config{
		ProjectDir:       root,
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "cortexdesk.db"),
		AgentName:        "agent",
		ProjectSkillsDir: filepath.Join(root, ".cortexdesk", "skills"),

		LLMProvider: ProviderDeepSeek,
		Model:       "deepseek-chat",
		MaxTokens:   4096,

		DefaultSymbol:       "BTC/USDT",
		DefaultExchange:     "binance",
		DefaultInterval:     "4h",
		DefaultPositionSize: 2.0,
		MaxLeverage:         5.0,
		AvailableBalance:    10000,
		ProfileCacheSeconds: 300,

		MaxHITLRounds: 50,
		MaxSteps:      40,
		ModelRetries:  3,
		InterruptOn:   []string{"save_memory", "delete_memory"},

		LogLevel: "info",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

// UserSkillsDir is where skills installed for the configured agent live.
func (c *Config) UserSkillsDir() string {
	return filepath.Join(c.DataDir, c.AgentName, "skills")
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
		c.DBPath = filepath.Join(val, "cortexdesk.db")
	}
	if val := os.Getenv("CORTEXDESK_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("CORTEXDESK_AGENT"); val != "" {
		c.AgentName = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.Model = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BaseURL = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}

	if val := os.Getenv("CORTEXDESK_DEFAULT_SYMBOL"); val != "" {
		c.DefaultSymbol = val
	}
	if val := os.Getenv("CORTEXDESK_DEFAULT_EXCHANGE"); val != "" {
		c.DefaultExchange = val
	}
	if val := os.Getenv("CORTEXDESK_DEFAULT_INTERVAL"); val != "" {
		c.DefaultInterval = val
	}
	if val := os.Getenv("CORTEXDESK_DEFAULT_POSITION_SIZE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.DefaultPositionSize = v
		}
	}
	if val := os.Getenv("CORTEXDESK_MAX_LEVERAGE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MaxLeverage = v
		}
	}
	if val := os.Getenv("CORTEXDESK_AVAILABLE_BALANCE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.AvailableBalance = v
		}
	}

	if val := os.Getenv("CORTEXDESK_MAX_HITL_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxHITLRounds = v
		}
	}
	if val := os.Getenv("CORTEXDESK_MAX_STEPS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxSteps = v
		}
	}
	if val := os.Getenv("CORTEXDESK_INTERRUPT_ON"); val != "" {
		c.InterruptOn = splitList(val)
	}

	if val := os.Getenv("CORTEXDESK_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every out-of-range field at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		errs = append(errs, fmt.Errorf("llm_provider %q must be %q or %q", c.LLMProvider, ProviderOpenAI, ProviderDeepSeek))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if !(c.DefaultPositionSize > 0 && c.DefaultPositionSize <= 100) {
		errs = append(errs, fmt.Errorf("default_position_size %.2f must be in (0, 100]", c.DefaultPositionSize))
	}
	if !(c.MaxLeverage >= 1) || math.IsInf(c.MaxLeverage, 1) {
		errs = append(errs, fmt.Errorf("max_leverage %.2f must be finite and at least 1", c.MaxLeverage))
	}
	if !(c.AvailableBalance >= 0) || math.IsInf(c.AvailableBalance, 1) {
		errs = append(errs, fmt.Errorf("available_balance %.2f must be finite and not negative", c.AvailableBalance))
	}
	if c.MaxHITLRounds < 1 {
		errs = append(errs, fmt.Errorf("max_hitl_rounds %d must be at least 1", c.MaxHITLRounds))
	}
	if c.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max_steps %d must be at least 1", c.MaxSteps))
	}
	if c.ModelRetries < 0 {
		errs = append(errs, fmt.Errorf("model_retries %d must not be negative", c.ModelRetries))
	}
	if c.EinoDebugEnabled && (c.EinoDebugPort <= 0 || c.EinoDebugPort > 65535) {
		errs = append(errs, fmt.Errorf("eino_debug_port %d out of range", c.EinoDebugPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.DataDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
