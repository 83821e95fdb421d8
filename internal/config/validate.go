package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/randalmurphal/queryflow/pkg/queryflow/llm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their config key rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(validateModel, llm.ModelConfig{})
	return v
}

func validateModel(sl validator.StructLevel) {
	m := sl.Current().Interface().(llm.ModelConfig)

	provider := llm.ParseProvider(string(m.Provider))
	if provider == llm.ProviderUnknown {
		sl.ReportError(m.Provider, "provider", "Provider", "provider", string(m.Provider))
		return
	}
	if provider != llm.ProviderClaudeCLI && m.Model == "" {
		sl.ReportError(m.Model, "model", "Model", "required", "")
	}
	if m.MaxTokens < 0 {
		sl.ReportError(m.MaxTokens, "max_tokens", "MaxTokens", "gte", "0")
	}
	if m.Timeout < 0 {
		sl.ReportError(m.Timeout, "timeout", "Timeout", "gte", "0")
	}
}

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid value found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks cfg and normalizes the model provider name. It returns
// ValidationErrors when any value is invalid.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		cfg.Model.Provider = llm.ParseProvider(string(cfg.Model.Provider))
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config validation: %w", err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Value:   fe.Value(),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath turns "Config.workflow.max_retries" into "workflow.max_retries".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	case "hostname_port":
		return "must be host:port"
	case "provider":
		return "unsupported model provider"
	default:
		return "failed " + fe.Tag()
	}
}
