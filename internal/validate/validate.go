// Package validate projects request fields onto typed inputs and checks them
// with declarative struct rules.
package validate

import (
	"errors"
	"html"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/dinear/service-api/internal/apperr"
	"github.com/ovaphlow/dinear/service-api/pkg/utilities"
)

// PlateSizes are the accepted plate_size values.
var PlateSizes = []string{"small", "medium", "large"}

const DefaultPlateSize = "medium"

// Page defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("letterdigit", letterDigit)
		_ = v.RegisterValidation("platesize", plateSize)
		instance = v
	})
	return instance
}

func letterDigit(fl validator.FieldLevel) bool {
	var letter, digit bool
	for _, c := range fl.Field().String() {
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			letter = true
		}
	}
	return letter && digit
}

func plateSize(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	for _, p := range PlateSizes {
		if s == p {
			return true
		}
	}
	return false
}

// messages are looked up by "<Struct>.<field>.<tag>" first, then "<field>.<tag>".
var messages = map[string]string{
	"email.required": "Please provide a valid email address",
	"email.email":    "Please provide a valid email address",
	"email.max":      "Email must be less than 255 characters",

	"password.required":    "Password must be between 8 and 128 characters",
	"password.min":         "Password must be between 8 and 128 characters",
	"password.max":         "Password must be between 8 and 128 characters",
	"password.letterdigit": "Password must contain at least one letter and one number",

	"LoginInput.password.required": "Password is required",
	"LoginInput.password.max":      "Invalid password",

	"name.required": "Dish name is required",
	"name.min":      "Dish name must be between 1 and 100 characters",
	"name.max":      "Dish name must be between 1 and 100 characters",

	"plate_size.platesize": "Plate size must be small, medium, or large",
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Namespace()+"."+fe.Tag()]; ok {
		return m
	}
	if m, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return m
	}
	return "Invalid value for " + fe.Field()
}

// Struct runs the struct's validate tags and reports every violation at once.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Internal(err)
	}
	details := make([]apperr.FieldError, 0, len(ves))
	for _, fe := range ves {
		details = append(details, apperr.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return apperr.Validation(details...)
}

// Project keeps only the allowed keys, taking the first value of each.
// Undeclared fields never reach validation.
func Project(values map[string][]string, allowed ...string) map[string]string {
	out := make(map[string]string, len(allowed))
	for _, k := range allowed {
		if vs, ok := values[k]; ok && len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// Escape HTML-escapes free text, including the forward slash.
func Escape(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "/", "&#x2F;")
}

// ID checks the path id shape.
func ID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !utilities.ValidID(id) {
		return "", apperr.Validation(apperr.FieldError{Field: "id", Message: "Invalid ID format"})
	}
	return id, nil
}

// Page reads page and limit, applying defaults and clamping limit to MaxLimit.
// Unparsable values fall back to the defaults.
func Page(query map[string][]string) (page, limit int) {
	page, limit = DefaultPage, DefaultLimit
	p := Project(query, "page", "limit")
	if n, err := strconv.Atoi(p["page"]); err == nil && n >= 1 {
		page = n
	}
	if n, err := strconv.Atoi(p["limit"]); err == nil && n >= 1 {
		limit = min(n, MaxLimit)
	}
	return page, limit
}
