package config

// Config is the complete client configuration loaded from one JSON or YAML file.
type Config struct {
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Tunnel  TunnelConfig  `json:"tunnel" yaml:"tunnel"`
	Session SessionConfig `json:"session" yaml:"session"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Relay   RelayConfig   `json:"relay" yaml:"relay"`
}

const (
	EncodingTagged = "tagged"
	EncodingBool   = "bool"

	PatchInline = "inline"
	PatchState  = "state"
)

type RuntimeConfig struct {
	BaseURL               string     `json:"base_url" yaml:"base_url"`
	AssistantID           string     `json:"assistant_id" yaml:"assistant_id"`
	ResumeEncoding        string     `json:"resume_encoding" yaml:"resume_encoding"`
	PatchMode             string     `json:"patch_mode" yaml:"patch_mode"`
	AsNode                string     `json:"as_node" yaml:"as_node"`
	EditStateKey          string     `json:"edit_state_key" yaml:"edit_state_key"`
	MaxRetries            int        `json:"max_retries" yaml:"max_retries"`
	RequestTimeoutSeconds int        `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	Auth                  AuthConfig `json:"auth" yaml:"auth"`
}

type AuthConfig struct {
	APIKey        string `json:"api_key" yaml:"api_key"`
	JWTSecret     string `json:"jwt_secret" yaml:"jwt_secret"`
	JWTSubject    string `json:"jwt_subject" yaml:"jwt_subject"`
	JWTTTLSeconds int    `json:"jwt_ttl_seconds" yaml:"jwt_ttl_seconds"`
}

type TunnelConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	User    string `json:"user" yaml:"user"`
	KeyPath string `json:"key_path" yaml:"key_path"`
}

type SessionConfig struct {
	InputKey       string `json:"input_key" yaml:"input_key"`
	LocalThreadIDs bool   `json:"local_thread_ids" yaml:"local_thread_ids"`
}

type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

type RelayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen"`
	Secret  string `json:"secret" yaml:"secret"`
}
