package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultAssistantID    = "agent"
	defaultEditStateKey   = "routing_decision"
	defaultRequestTimeout = 30
	defaultJWTTTL         = 300
	defaultJWTSubject     = "hitlctl"
	defaultInputKey       = "user_request"
	defaultStorePath      = "~/.hitlctl/threads.db"
	defaultRelayListen    = "127.0.0.1:9191"
)

func must(ok bool, msg string) {
	if msg == "" {
		panic("assertion message must not be empty")
	}
	if !ok {
		panic(msg)
	}
}

func Load(path string) (*Config, error) {
	must(path != "", "config path must not be empty")
	must(strings.TrimSpace(path) != "", "config path must not be blank")

	p, err := expandHome(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", p, err)
	}
	var c Config
	if err := decode(p, b, &c); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", p, err)
	}

	applyDefaults(&c)
	if err := expandPaths(&c); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	must(c.Runtime.AssistantID != "", "assistant id must not be empty after load")
	must(c.Store.Path != "", "store path must not be empty after load")
	return &c, nil
}

func decode(path string, b []byte, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, c)
	default:
		return json.Unmarshal(b, c)
	}
}

// Default returns a configuration with every default applied and no runtime URL.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Config) {
	must(c != nil, "config pointer must not be nil")

	applyRuntimeDefaults(&c.Runtime)
	applySessionDefaults(&c.Session)
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Relay.Listen == "" {
		c.Relay.Listen = defaultRelayListen
	}

	must(c.Store.Path != "", "store path defaulting failed")
	must(c.Relay.Listen != "", "relay listen defaulting failed")
}

func applyRuntimeDefaults(r *RuntimeConfig) {
	must(r != nil, "runtime config pointer must not be nil")

	r.BaseURL = strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if r.AssistantID == "" {
		r.AssistantID = defaultAssistantID
	}
	if r.ResumeEncoding == "" {
		r.ResumeEncoding = EncodingTagged
	}
	if r.PatchMode == "" {
		r.PatchMode = PatchInline
		if r.ResumeEncoding == EncodingBool {
			r.PatchMode = PatchState
		}
	}
	if r.EditStateKey == "" {
		r.EditStateKey = defaultEditStateKey
	}
	if r.RequestTimeoutSeconds == 0 {
		r.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if r.Auth.JWTSecret != "" {
		if r.Auth.JWTSubject == "" {
			r.Auth.JWTSubject = defaultJWTSubject
		}
		if r.Auth.JWTTTLSeconds == 0 {
			r.Auth.JWTTTLSeconds = defaultJWTTTL
		}
	}

	must(r.ResumeEncoding != "", "resume encoding must not be empty after defaults")
	must(r.PatchMode != "", "patch mode must not be empty after defaults")
}

func applySessionDefaults(s *SessionConfig) {
	must(s != nil, "session config pointer must not be nil")

	if s.InputKey == "" {
		s.InputKey = defaultInputKey
	}

	must(s.InputKey != "", "input key must not be empty after defaults")
}

func expandPaths(c *Config) error {
	must(c != nil, "config pointer must not be nil")
	must(c.Store.Path != "", "store path must be set before expansion")

	p, err := expandHome(c.Store.Path)
	if err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	c.Store.Path = p
	if c.Tunnel.KeyPath != "" {
		k, err := expandHome(c.Tunnel.KeyPath)
		if err != nil {
			return fmt.Errorf("tunnel.key_path: %w", err)
		}
		c.Tunnel.KeyPath = k
	}

	must(c.Store.Path != "", "store path expansion produced empty path")
	return nil
}

func expandHome(p string) (string, error) {
	must(p != "", "path must not be empty")

	p = strings.TrimSpace(p)
	if p == "" || p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if p == "~" {
		must(h != "", "home dir must not be empty")
		return h, nil
	}
	if strings.HasPrefix(p, "~/") {
		o := filepath.Join(h, p[2:])
		must(o != "", "expanded path must not be empty")
		return o, nil
	}
	return "", fmt.Errorf("unsupported home path %q", p)
}

func validate(c Config) error {
	must(c.Store.Path != "", "store path must be set before validation")

	if err := validateRuntime(c.Runtime); err != nil {
		return err
	}
	if err := validateTunnel(c.Tunnel); err != nil {
		return err
	}
	if err := validateRelay(c.Relay); err != nil {
		return err
	}
	return nil
}

func validateRuntime(r RuntimeConfig) error {
	enc := map[string]bool{EncodingTagged: true, EncodingBool: true}
	mode := map[string]bool{PatchInline: true, PatchState: true}
	must(len(enc) == 2, "resume encoding set must contain two values")
	must(len(mode) == 2, "patch mode set must contain two values")

	if r.BaseURL == "" {
		return fmt.Errorf("runtime.base_url is required")
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("runtime.base_url must be an http(s) url")
	}
	if !enc[r.ResumeEncoding] {
		return fmt.Errorf("runtime.resume_encoding must be one of tagged, bool")
	}
	if !mode[r.PatchMode] {
		return fmt.Errorf("runtime.patch_mode must be one of inline, state")
	}
	if r.ResumeEncoding == EncodingBool && r.PatchMode == PatchInline {
		return fmt.Errorf("runtime.patch_mode must be state when runtime.resume_encoding=bool")
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("runtime.max_retries must not be negative")
	}
	if r.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("runtime.request_timeout_seconds must be greater than zero")
	}
	if r.Auth.APIKey != "" && r.Auth.JWTSecret != "" {
		return fmt.Errorf("runtime.auth accepts api_key or jwt_secret, not both")
	}
	if r.Auth.JWTSecret != "" && r.Auth.JWTTTLSeconds <= 0 {
		return fmt.Errorf("runtime.auth.jwt_ttl_seconds must be greater than zero")
	}
	return nil
}

func validateTunnel(t TunnelConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.Host == "" {
		return fmt.Errorf("tunnel.host is required when tunnel.enabled=true")
	}
	if t.User == "" {
		return fmt.Errorf("tunnel.user is required when tunnel.enabled=true")
	}
	if t.KeyPath == "" {
		return fmt.Errorf("tunnel.key_path is required when tunnel.enabled=true")
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	if !r.Enabled {
		return nil
	}
	if r.Listen == "" {
		return fmt.Errorf("relay.listen is required when relay.enabled=true")
	}
	return nil
}
