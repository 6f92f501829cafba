package runtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agusx1211/hitlctl/config"
	"github.com/golang-jwt/jwt/v5"
)

type authorizer interface {
	apply(req *http.Request) error
}

type noAuth struct{}

func (noAuth) apply(*http.Request) error { return nil }

type apiKeyAuth struct {
	key string
}

func (a apiKeyAuth) apply(req *http.Request) error {
	req.Header.Set("X-Api-Key", a.key)
	return nil
}

// jwtAuth mints a short-lived HS256 token for every request.
type jwtAuth struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time
}

func (a jwtAuth) apply(req *http.Request) error {
	tok, err := a.token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (a jwtAuth) token() (string, error) {
	must(len(a.secret) > 0, "jwt secret must not be empty")
	must(a.ttl > 0, "jwt ttl must be positive")
	now := a.now()
	claims := jwt.MapClaims{
		"sub": a.subject,
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign runtime token: %w", err)
	}
	return s, nil
}

func newAuthorizer(cfg config.AuthConfig) authorizer {
	switch {
	case cfg.APIKey != "":
		return apiKeyAuth{key: cfg.APIKey}
	case cfg.JWTSecret != "":
		return jwtAuth{
			secret:  []byte(cfg.JWTSecret),
			subject: cfg.JWTSubject,
			ttl:     time.Duration(cfg.JWTTTLSeconds) * time.Second,
			now:     time.Now,
		}
	}
	return noAuth{}
}
