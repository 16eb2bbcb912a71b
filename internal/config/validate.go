package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/signalnine/benchforge/internal/parse"
)

var (
	validateOnce sync.Once
	structCheck  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		structCheck = v
	})
	return structCheck
}

// Validate checks field constraints, then the cross-field rules tags cannot
// express.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return &Error{Kind: ValidationError, Msg: "checking fields", Err: err}
	}

	if *cfg.Version != 1 {
		return errorf(ValidationError, "unsupported config version: %d (expected 1)", *cfg.Version)
	}
	if cfg.Test.Enabled && len(cfg.Test.Cmd) == 0 {
		return errorf(ValidationError, "invalid 'test.cmd' (must be non-empty when test.enabled=true)")
	}
	for _, id := range cfg.TargetIDs() {
		if err := validateTarget(id, cfg.Targets[id]); err != nil {
			return err
		}
	}
	return nil
}

func validateTarget(id string, t *Target) error {
	path := "targets." + id

	hasGlob := strings.TrimSpace(t.Run.ExeGlob) != ""
	hasCmd := len(t.Run.Cmd) > 0
	if hasGlob == hasCmd {
		return errorf(ValidationError, "invalid '%s.run' (must define exactly one of run.exe_glob or run.cmd)", path)
	}
	if hasCmd && t.Run.Args != nil {
		return errorf(ValidationError, "invalid '%s.run.args' (not allowed when run.cmd is used)", path)
	}

	names := make(map[string]bool)
	if t.Parse != nil {
		for i, r := range t.Parse.Rules {
			if names[r.Name] {
				return errorf(ValidationError, "duplicate parse rule name '%s' under '%s.parse.rules'", r.Name, path)
			}
			names[r.Name] = true
			if r.Units != "" && strings.TrimSpace(r.Units) == "" {
				return errorf(ValidationError, "invalid '%s.parse.rules[%d].units' (must be a non-empty string when present)", path, i)
			}
		}
		rules, err := t.Rules()
		if err != nil {
			return &Error{Kind: ValidationError, Msg: path + ".parse.rules", Err: err}
		}
		if _, err := parse.Compile(rules); err != nil {
			return &Error{Kind: ValidationError, Msg: path + ".parse.rules", Err: err}
		}
	}

	if rule := t.PassRule(); rule != "" {
		if t.Parse == nil {
			return errorf(ValidationError, "invalid '%s.success.pass_rule' (target has no parse section)", path)
		}
		if !names[rule] {
			return errorf(ValidationError, "invalid '%s.success.pass_rule' (must reference a defined parse rule)", path)
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) *Error {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("missing required '%s'", path)
	case "notblank":
		msg = fmt.Sprintf("missing or invalid '%s' (must be a non-empty string)", path)
	case "min", "max":
		msg = fmt.Sprintf("invalid '%s' (%s=%s)", path, fe.Tag(), fe.Param())
	case "oneof":
		msg = fmt.Sprintf("invalid '%s' (expected one of: %s)", path, fe.Param())
	case "eq":
		msg = fmt.Sprintf("invalid '%s' (expected '%s')", path, fe.Param())
	case "required_if":
		msg = fmt.Sprintf("missing '%s' (required when %s)", path, fe.Param())
	default:
		msg = fmt.Sprintf("invalid '%s' (failed '%s')", path, fe.Tag())
	}
	return &Error{Kind: ValidationError, Msg: msg}
}
