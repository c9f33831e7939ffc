package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"bundlectl/internal/bundle"
)

// Validate checks the configuration and reports every failing field.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("bundle_version", validateBundleVersion); err != nil {
		return err
	}
	if err := v.RegisterValidation("regexp", validateRegexp); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validateBundleVersion(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := bundle.NormalizeToSemver(s, nil)
	return err == nil
}

func validateRegexp(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := regexp.Compile(s)
	return err == nil
}
