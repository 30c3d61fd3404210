package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/opcuad/pkg/identity"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot
// express. It expects defaults to have been applied.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Identity.Issued.Enabled && len(cfg.Identity.Issued.Secret) < identity.MinSecretLength {
		return fmt.Errorf("identity.issued.secret must be at least %d characters when issued tokens are enabled", identity.MinSecretLength)
	}
	if !cfg.Identity.AllowAnonymous && len(cfg.Identity.Users) == 0 && !cfg.Identity.Issued.Enabled {
		return errors.New("identity: no login method enabled; allow anonymous, add users or enable issued tokens")
	}
	if cfg.Session.DefaultTimeout < cfg.Session.MinTimeout || cfg.Session.DefaultTimeout > cfg.Session.MaxTimeout {
		return fmt.Errorf("session.default_timeout %s must be within [%s, %s]",
			cfg.Session.DefaultTimeout, cfg.Session.MinTimeout, cfg.Session.MaxTimeout)
	}
	if cfg.Subscription.MaxLifetimeCount < 3*cfg.Subscription.MaxKeepAliveCount {
		return errors.New("subscription.max_lifetime_count must be at least three times max_keep_alive_count")
	}
	return nil
}

// formatValidationErrors turns validator errors into one readable error
// naming the config keys.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q%s", fieldPath(fe.Namespace()), fe.Tag(), param(fe.Param())))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return " (" + p + ")"
}

// fieldPath strips the root type from a validator namespace:
// "Config.Logging.Level" becomes "Logging.Level".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
