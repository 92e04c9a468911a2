package config

import (
	"fmt"

	"github.com/glorpus-work/featurectl/pkg/auth"
	"github.com/glorpus-work/featurectl/pkg/errors"
)

// AuthConfigContainer defines the interface for authentication configuration types that can be converted to an Authenticator.
type AuthConfigContainer interface {
	ToAuthenticator() auth.Authenticator
}

// AuthConfig holds the credentials used for one host. Exactly one method
// must be set.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds configuration for custom header-based authentication.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds configuration for Bearer token authentication.
type BearerAuth struct {
	Token string `yaml:"token"`
}

// ToAuthenticator converts the BasicAuth configuration to an Authenticator.
func (b *BasicAuth) ToAuthenticator() auth.Authenticator {
	return &auth.BasicAuth{
		Username: b.Username,
		Password: b.Password,
	}
}

// ToAuthenticator converts the HeaderAuth configuration to an Authenticator.
func (h *HeaderAuth) ToAuthenticator() auth.Authenticator {
	return &auth.HeaderAuth{
		Headers: h.Headers,
	}
}

// ToAuthenticator converts the BearerAuth configuration to an Authenticator.
func (b *BearerAuth) ToAuthenticator() auth.Authenticator {
	return &auth.BearerAuth{
		Token: b.Token,
	}
}

func (a *AuthConfig) container() AuthConfigContainer {
	switch {
	case a == nil:
		return nil
	case a.BasicAuth != nil:
		return a.BasicAuth
	case a.HeaderAuth != nil:
		return a.HeaderAuth
	case a.BearerAuth != nil:
		return a.BearerAuth
	default:
		return nil
	}
}

func (a *AuthConfig) methods() int {
	n := 0
	if a.BasicAuth != nil {
		n++
	}
	if a.HeaderAuth != nil {
		n++
	}
	if a.BearerAuth != nil {
		n++
	}
	return n
}

func validateAuth(entries map[string]*AuthConfig) error {
	for host, a := range entries {
		if host == "" {
			return fmt.Errorf("auth entry without host: %w", errors.ErrConfigValidation)
		}
		if a == nil || a.methods() != 1 {
			return fmt.Errorf("auth for '%s' must set exactly one of basic, header, bearer: %w", host, errors.ErrConfigValidation)
		}
	}
	return nil
}

// ToAuthMap converts the authentication configurations to a map of host
// patterns to Authenticators. Returns nil if none are configured.
func (c *Config) ToAuthMap() auth.Hosts {
	results := make(auth.Hosts, len(c.Auth))
	for host, a := range c.Auth {
		if container := a.container(); container != nil {
			results[host] = container.ToAuthenticator()
		}
	}
	if len(results) == 0 {
		return nil
	}
	return results
}
