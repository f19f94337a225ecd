package audio

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/satindergrewal/astrosonic/internal/mapper"
)

// Mode selects how charts are combined into one render.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModeNatal    Mode = "natal"
	ModeSynastry Mode = "synastry"
	ModeSandbox  Mode = "sandbox"
)

// Config describes one render request. Seed is optional; when empty a
// seed is derived from the request inputs.
type Config struct {
	Mode        Mode    `json:"mode" yaml:"mode" default:"natal" validate:"oneof=daily natal synastry sandbox"`
	Genre       string  `json:"genre" yaml:"genre" default:"ambient" validate:"genre"`
	DurationSec float64 `json:"durationSec" yaml:"duration_sec" default:"30" validate:"gte=1,lte=300"`
	SampleRate  int     `json:"sampleRate" yaml:"sample_rate" default:"22050" validate:"oneof=16000 22050"`
	Seed        string  `json:"seed,omitempty" yaml:"seed" validate:"max=256"`
}

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid audio config")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string         `json:"field"`
	Tag     string         `json:"tag"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// ConfigError is returned before synthesis starts when inputs are out of range.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return mapper.IsValidGenre(fl.Field().String())
	})
	return v
}

// ApplyDefaults fills zero-valued fields from their default tags.
func (c *Config) ApplyDefaults() error {
	return defaults.Set(c)
}

// Validate checks ranges and, for synastry, that a partner chart exists.
func (c Config) Validate(hasPartner bool) error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if c.Mode == ModeSynastry && !hasPartner {
		return &ConfigError{Fields: []FieldError{{
			Field:   "chartB",
			Tag:     "required_if",
			Message: "chartB is required when mode is synastry",
		}}}
	}
	return nil
}

// ValidateStruct runs struct-tag validation on v and converts failures
// into a ConfigError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Fields: []FieldError{{Tag: "unknown", Message: err.Error()}}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fieldPath(fe),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
			Params:  fieldParams(fe),
		})
	}
	return &ConfigError{Fields: fields}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "genre":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(mapper.GenreNames(), ", "))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func fieldParams(fe validator.FieldError) map[string]any {
	switch fe.Tag() {
	case "gte":
		return map[string]any{"min": fe.Param()}
	case "lte", "lt", "max":
		return map[string]any{"max": fe.Param()}
	case "oneof":
		return map[string]any{"options": strings.Split(fe.Param(), " ")}
	case "genre":
		return map[string]any{"options": mapper.GenreNames()}
	}
	return nil
}
