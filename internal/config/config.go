package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

type Config struct {
	UpstreamBaseURL  string
	UpstreamPath     string
	UpstreamAPIKey   string
	UpstreamProxyURL string
	UpstreamHeaders  map[string]string
	DefaultModel     string
	ListenAddr       string
	DefaultUser      string
	RequestTimeout   time.Duration
	// A2A
	A2AEnabled        bool
	A2APort           int
	AgentName         string
	AgentDesc         string
	AgentSystemPrompt string
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	Upstream struct {
		BaseURL      string            `yaml:"base_url"`
		Path         string            `yaml:"path"`
		APIKey       string            `yaml:"api_key"`
		ProxyURL     string            `yaml:"proxy_url"`
		Headers      map[string]string `yaml:"headers"`
		DefaultModel string            `yaml:"default_model"`
		Timeout      time.Duration     `yaml:"timeout"`
	} `yaml:"upstream"`
	Server struct {
		ListenAddr  string `yaml:"listen_addr"`
		DefaultUser string `yaml:"default_user"`
	} `yaml:"server"`
	A2A struct {
		Enabled      *bool  `yaml:"enabled"`
		Port         int    `yaml:"port"`
		AgentName    string `yaml:"agent_name"`
		AgentDesc    string `yaml:"agent_desc"`
		SystemPrompt string `yaml:"system_prompt"`
	} `yaml:"a2a"`
}

func defaults() *Config {
	return &Config{
		UpstreamBaseURL: chatgpt.DefaultBaseURL,
		UpstreamPath:    chatgpt.DefaultPath,
		DefaultModel:    chatgpt.ModelGPT35Turbo.String(),
		ListenAddr:      ":8080",
		DefaultUser:     "chatgpt-agent",
		RequestTimeout:  120 * time.Second,
		A2APort:         8000,
		AgentName:       "chatgpt-agent",
		AgentDesc:       "Chat-completion backed agent exposed via A2A protocol",
	}
}

// Load parses the process command line. It exits on invalid flags or a bad
// configuration file, like flag.Parse.
func Load() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse resolves the configuration from args, the environment and an
// optional YAML file. Precedence is flag > env > file > default.
func Parse(args []string) (*Config, error) {
	d := defaults()
	fs := flag.NewFlagSet("chatgpt-agent", flag.ContinueOnError)

	configFile := fs.String("config", getEnv("CONFIG_FILE", ""), "YAML configuration file")
	var f Config
	fs.StringVar(&f.UpstreamBaseURL, "upstream-base-url", d.UpstreamBaseURL, "Chat-completion service base URL")
	fs.StringVar(&f.UpstreamPath, "upstream-path", d.UpstreamPath, "Chat-completion endpoint path")
	fs.StringVar(&f.UpstreamAPIKey, "upstream-api-key", "", "Upstream API key (required for A2A; proxy prefers the caller's key)")
	fs.StringVar(&f.UpstreamProxyURL, "upstream-proxy-url", "", "HTTP/HTTPS proxy URL for upstream requests (e.g. http://proxy:8080)")
	fs.StringVar(&f.DefaultModel, "default-model", d.DefaultModel, "Model used when a request names none")
	fs.StringVar(&f.ListenAddr, "listen-addr", d.ListenAddr, "Proxy listen address")
	fs.StringVar(&f.DefaultUser, "default-user", d.DefaultUser, "Default user field for upstream requests")
	fs.DurationVar(&f.RequestTimeout, "request-timeout", d.RequestTimeout, "Upstream round-trip timeout")
	fs.BoolVar(&f.A2AEnabled, "a2a", false, "Enable A2A server alongside the proxy")
	fs.IntVar(&f.A2APort, "a2a-port", d.A2APort, "A2A server listen port")
	fs.StringVar(&f.AgentName, "agent-name", d.AgentName, "A2A AgentCard name")
	fs.StringVar(&f.AgentDesc, "agent-desc", d.AgentDesc, "A2A AgentCard description")
	fs.StringVar(&f.AgentSystemPrompt, "agent-system-prompt", "", "System prompt prepended to every A2A conversation")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := d
	if *configFile != "" {
		if err := cfg.applyFile(*configFile); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "upstream-base-url":
			cfg.UpstreamBaseURL = f.UpstreamBaseURL
		case "upstream-path":
			cfg.UpstreamPath = f.UpstreamPath
		case "upstream-api-key":
			cfg.UpstreamAPIKey = f.UpstreamAPIKey
		case "upstream-proxy-url":
			cfg.UpstreamProxyURL = f.UpstreamProxyURL
		case "default-model":
			cfg.DefaultModel = f.DefaultModel
		case "listen-addr":
			cfg.ListenAddr = f.ListenAddr
		case "default-user":
			cfg.DefaultUser = f.DefaultUser
		case "request-timeout":
			cfg.RequestTimeout = f.RequestTimeout
		case "a2a":
			cfg.A2AEnabled = f.A2AEnabled
		case "a2a-port":
			cfg.A2APort = f.A2APort
		case "agent-name":
			cfg.AgentName = f.AgentName
		case "agent-desc":
			cfg.AgentDesc = f.AgentDesc
		case "agent-system-prompt":
			cfg.AgentSystemPrompt = f.AgentSystemPrompt
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", absPath, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	setString(&c.UpstreamBaseURL, fc.Upstream.BaseURL)
	setString(&c.UpstreamPath, fc.Upstream.Path)
	setString(&c.UpstreamAPIKey, fc.Upstream.APIKey)
	setString(&c.UpstreamProxyURL, fc.Upstream.ProxyURL)
	setString(&c.DefaultModel, fc.Upstream.DefaultModel)
	if len(fc.Upstream.Headers) > 0 {
		c.UpstreamHeaders = fc.Upstream.Headers
	}
	if fc.Upstream.Timeout > 0 {
		c.RequestTimeout = fc.Upstream.Timeout
	}
	setString(&c.ListenAddr, fc.Server.ListenAddr)
	setString(&c.DefaultUser, fc.Server.DefaultUser)
	if fc.A2A.Enabled != nil {
		c.A2AEnabled = *fc.A2A.Enabled
	}
	if fc.A2A.Port != 0 {
		c.A2APort = fc.A2A.Port
	}
	setString(&c.AgentName, fc.A2A.AgentName)
	setString(&c.AgentDesc, fc.A2A.AgentDesc)
	setString(&c.AgentSystemPrompt, fc.A2A.SystemPrompt)
	return nil
}

func (c *Config) applyEnv() {
	c.UpstreamBaseURL = getEnv("UPSTREAM_BASE_URL", c.UpstreamBaseURL)
	c.UpstreamPath = getEnv("UPSTREAM_PATH", c.UpstreamPath)
	c.UpstreamAPIKey = getEnv("UPSTREAM_API_KEY", getEnv("OPENAI_API_KEY", c.UpstreamAPIKey))
	c.UpstreamProxyURL = getEnv("UPSTREAM_PROXY_URL", c.UpstreamProxyURL)
	c.DefaultModel = getEnv("DEFAULT_MODEL", c.DefaultModel)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.DefaultUser = getEnv("DEFAULT_USER", c.DefaultUser)
	if d, err := time.ParseDuration(os.Getenv("REQUEST_TIMEOUT")); err == nil && d > 0 {
		c.RequestTimeout = d
	}
	c.A2AEnabled = getEnvBool("A2A_ENABLED", c.A2AEnabled)
	c.A2APort = getEnvInt("A2A_PORT", c.A2APort)
	c.AgentName = getEnv("AGENT_NAME", c.AgentName)
	c.AgentDesc = getEnv("AGENT_DESC", c.AgentDesc)
	c.AgentSystemPrompt = getEnv("AGENT_SYSTEM_PROMPT", c.AgentSystemPrompt)
}

// Validate performs sanity checks on the resolved configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.UpstreamBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream base URL must be an absolute URL, got %q", c.UpstreamBaseURL)
	}
	if c.UpstreamProxyURL != "" {
		u, err := url.Parse(c.UpstreamProxyURL)
		if err != nil {
			return fmt.Errorf("invalid upstream proxy URL %q: %w", c.UpstreamProxyURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream proxy URL %q: scheme and host required", c.UpstreamProxyURL)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.A2APort <= 0 || c.A2APort > 65535 {
		return fmt.Errorf("a2a port must be a valid TCP port, got %d", c.A2APort)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}

// ClientConfig derives the chat-completion client settings.
func (c *Config) ClientConfig() chatgpt.Config {
	return chatgpt.Config{
		BaseURL:      c.UpstreamBaseURL,
		Path:         c.UpstreamPath,
		APIKey:       c.UpstreamAPIKey,
		Headers:      c.UpstreamHeaders,
		ProxyURL:     c.UpstreamProxyURL,
		Timeout:      c.RequestTimeout,
		DefaultModel: chatgpt.CustomModel(c.DefaultModel),
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
