// Package validation provides request and draft validation on top of validator/v10.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/profanity"
)

// Checker is the profanity check consulted by the "clean" tag.
type Checker interface {
	Check(text string) profanity.Result
}

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v       *validator.Validate
	checker Checker
}

// Option configures a Validator.
type Option func(*Validator)

// WithChecker replaces the built-in block list used by the "clean" tag.
func WithChecker(c Checker) Option {
	return func(v *Validator) { v.checker = c }
}

// New creates a validator configured for letters.
//
// Custom tags:
//   - member: value is a known addressee
//   - clean: text passes the profanity check
//   - notblank: text is not only whitespace
func New(opts ...Option) *Validator {
	val := &Validator{v: validator.New(), checker: profanity.Default}
	for _, opt := range opts {
		opt(val)
	}

	// Use JSON tag names in error messages
	val.v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = val.v.RegisterValidation("member", func(fl validator.FieldLevel) bool {
		return domain.Member(fl.Field().String()).Valid()
	})
	_ = val.v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = val.v.RegisterValidation("clean", func(fl validator.FieldLevel) bool {
		return !val.checker.Check(fl.Field().String()).HasMatch
	})

	return val
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, s)
	}
	return nil
}

// FieldErrors is the Details payload of a validation error: field name to message.
type FieldErrors map[string]string

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error, s any) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(FieldErrors, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	derr := domainerrors.ValidationWithDetails("validation failed", fieldErrors)
	if blocked := v.blockedWords(s); len(blocked) > 0 {
		return derr.WithDetails(DraftErrors{Fields: fieldErrors, BlockedWords: blocked})
	}
	return derr
}

// DraftErrors is the Details payload when a draft message hits the block list.
type DraftErrors struct {
	Fields       FieldErrors `json:"fields"`
	BlockedWords []string    `json:"blocked_words"`
}

func (v *Validator) blockedWords(s any) []string {
	var msg string
	switch d := s.(type) {
	case domain.Draft:
		msg = d.Message
	case *domain.Draft:
		msg = d.Message
	default:
		return nil
	}
	return v.checker.Check(msg).Matches
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "member":
		return "must be one of: " + memberList()
	case "clean":
		return "contains words that are not allowed"
	case "oneof":
		return "must be one of: " + e.Param()
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}

func memberList() string {
	names := make([]string, len(domain.Members))
	for i, m := range domain.Members {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// Details extracts per-field messages and blocked words from a validation
// error. It understands the in-process payloads and their JSON-decoded form
// from an HTTP error body. ok is false for any other error.
func Details(err error) (fields FieldErrors, blocked []string, ok bool) {
	var derr *domainerrors.Error
	if !errors.As(err, &derr) || !errors.Is(err, domainerrors.ErrValidation) {
		return nil, nil, false
	}
	switch d := derr.Details.(type) {
	case FieldErrors:
		fields = d
	case DraftErrors:
		fields, blocked = d.Fields, d.BlockedWords
	case *DraftErrors:
		fields, blocked = d.Fields, d.BlockedWords
	case map[string]any:
		raw := d
		if nested, isMap := d["fields"].(map[string]any); isMap {
			raw = nested
		}
		fields = make(FieldErrors, len(raw))
		for k, v := range raw {
			if s, isStr := v.(string); isStr {
				fields[k] = s
			}
		}
		if words, isList := d["blocked_words"].([]any); isList {
			for _, w := range words {
				if s, isStr := w.(string); isStr {
					blocked = append(blocked, s)
				}
			}
		}
	}
	return fields, blocked, true
}
