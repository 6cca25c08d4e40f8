// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names so messages match the config file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the loaded configuration and returns every problem found.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	seen := map[string]bool{}
	for _, r := range c.Repositories {
		if r.ID != "" && seen[r.ID] {
			problems = append(problems, fmt.Sprintf("repository %s is defined more than once", r.ID))
		}
		seen[r.ID] = true
	}

	if c.System.Timezone != "" {
		if _, err := time.LoadLocation(c.System.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("system.timezone: unknown zone %q", c.System.Timezone))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + ": is required"
	case "required_without":
		return field + ": repository_path or url is required"
	case "min":
		return fmt.Sprintf("%s: needs at least %s entry", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s: %q is not a valid email address", field, fe.Value())
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s: %v is out of range", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of %s", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}
