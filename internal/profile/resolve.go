package profile

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/vibee/vibee/internal/config"
)

// DefaultName is used when nothing else names a profile.
const DefaultName = "default"

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid profile name")

// Names are directory names and --profile values, so they start with a
// letter or digit.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks name against ^[a-z0-9][a-z0-9_-]{0,63}$.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z 0-9 _ -, starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. $VIBEE_PROFILE
// 3. config.toml default_profile
// 4. "default"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(config.EnvProfile); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// Select loads ~/.vibee/.env, which may set VIBEE_PROFILE, then resolves
// and validates the profile name. Every binary starts here.
func Select(flagOverride string) (string, error) {
	if err := config.LoadEnvFile(EnvPath()); err != nil {
		return "", err
	}
	name := Resolve(flagOverride)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
