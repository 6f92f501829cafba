package setup

import "github.com/agusx1211/hitlctl/config"

var (
	encodingOptions = []option{
		{config.EncodingTagged, "resume carries the decision type, args and message"},
		{config.EncodingBool, "resume is true or false; details go through state patches"},
	}
	patchOptions = []option{
		{config.PatchInline, "the resume value alone carries the decision"},
		{config.PatchState, "reject and edit write thread state before resuming"},
	}
	authOptions = []option{
		{"none", "no credentials"},
		{"api_key", "static X-Api-Key header"},
		{"jwt", "short-lived HS256 bearer token"},
	}
)

func configureRuntime(p *prompter, r *config.RuntimeConfig) error {
	p.heading("Agent Runtime")
	base, err := p.text("Runtime base URL", pickString(r.BaseURL, "http://127.0.0.1:2024"), runtimeURL)
	if err != nil {
		return err
	}
	assistant, err := p.text("Assistant id", r.AssistantID, required)
	if err != nil {
		return err
	}
	r.BaseURL = base
	r.AssistantID = assistant
	enc, err := p.choose("Resume encoding", encodingOptions, r.ResumeEncoding)
	if err != nil {
		return err
	}
	r.ResumeEncoding = enc
	if enc == config.EncodingBool {
		p.say("Boolean resumes carry no payload, so decisions are written with state patches.")
		r.PatchMode = config.PatchState
	} else {
		mode, err := p.choose("Patch mode", patchOptions, r.PatchMode)
		if err != nil {
			return err
		}
		r.PatchMode = mode
	}
	if r.PatchMode == config.PatchState {
		if err := configurePatches(p, r); err != nil {
			return err
		}
	}
	retries, err := p.number("Retries for throttled requests (429/503)", r.MaxRetries, 0)
	if err != nil {
		return err
	}
	timeout, err := p.number("Request timeout seconds", pickInt(r.RequestTimeoutSeconds, 30), 1)
	if err != nil {
		return err
	}
	r.MaxRetries = retries
	r.RequestTimeoutSeconds = timeout
	return nil
}

func configurePatches(p *prompter, r *config.RuntimeConfig) error {
	asNode, err := p.text("Patch as node", r.AsNode, nil)
	if err != nil {
		return err
	}
	key, err := p.text("State key rewritten by edits", r.EditStateKey, required)
	if err != nil {
		return err
	}
	r.AsNode = asNode
	r.EditStateKey = key
	return nil
}

func configureAuth(p *prompter, a *config.AuthConfig) error {
	p.heading("Runtime Auth")
	mode, err := p.choose("Auth mode", authOptions, authMode(*a))
	if err != nil {
		return err
	}
	switch mode {
	case "none":
		*a = config.AuthConfig{}
	case "api_key":
		key, err := p.secret("API key", a.APIKey, true)
		if err != nil {
			return err
		}
		*a = config.AuthConfig{APIKey: key}
	case "jwt":
		secret, err := p.secret("JWT signing secret", a.JWTSecret, true)
		if err != nil {
			return err
		}
		subject, err := p.text("JWT subject", pickString(a.JWTSubject, "hitlctl"), required)
		if err != nil {
			return err
		}
		ttl, err := p.number("JWT lifetime seconds", pickInt(a.JWTTTLSeconds, 300), 1)
		if err != nil {
			return err
		}
		*a = config.AuthConfig{JWTSecret: secret, JWTSubject: subject, JWTTTLSeconds: ttl}
	}
	return nil
}

func configureTunnel(p *prompter, t *config.TunnelConfig) error {
	p.heading("SSH Tunnel")
	enabled, err := p.yesNo("Reach the runtime through an SSH jump host", t.Enabled)
	if err != nil {
		return err
	}
	t.Enabled = enabled
	if !t.Enabled {
		return nil
	}
	host, err := p.text("Jump host (host:port)", t.Host, hostPort)
	if err != nil {
		return err
	}
	user, err := p.text("SSH user", t.User, required)
	if err != nil {
		return err
	}
	key, err := p.text("Private key path", pickString(t.KeyPath, "~/.ssh/id_ed25519"), required)
	if err != nil {
		return err
	}
	t.Host = host
	t.User = user
	t.KeyPath = key
	return nil
}

func configureSession(p *prompter, s *config.SessionConfig, st *config.StoreConfig) error {
	p.heading("Sessions")
	key, err := p.text("Input key for user messages", s.InputKey, required)
	if err != nil {
		return err
	}
	local, err := p.yesNo("Generate thread ids locally", s.LocalThreadIDs)
	if err != nil {
		return err
	}
	path, err := p.text("History database path", st.Path, required)
	if err != nil {
		return err
	}
	s.InputKey = key
	s.LocalThreadIDs = local
	st.Path = path
	return nil
}

func configureRelay(p *prompter, r *config.RelayConfig) error {
	p.heading("Operator Relay")
	enabled, err := p.yesNo("Serve the operator relay during chat", r.Enabled)
	if err != nil {
		return err
	}
	r.Enabled = enabled
	listen, err := p.text("Relay listen address", r.Listen, hostPort)
	if err != nil {
		return err
	}
	r.Listen = listen
	secret, err := p.secret("Relay HMAC secret (signs POST bodies and websocket thread ids)", r.Secret, false)
	if err != nil {
		return err
	}
	r.Secret = secret
	return nil
}

func authMode(a config.AuthConfig) string {
	switch {
	case a.APIKey != "":
		return "api_key"
	case a.JWTSecret != "":
		return "jwt"
	}
	return "none"
}

func pickString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func pickInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
