package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultLimit = 6
	MaxLimit     = 15
)

// Global validator instance for reuse
var validate = validator.New()

// SearchFilters is the structured search request. It is immutable once a job
// has been created from it.
type SearchFilters struct {
	Topic          string `json:"topic" validate:"required"`
	Language       string `json:"language,omitempty"`
	MinStars       *int   `json:"minStars,omitempty" validate:"omitempty,gte=0"`
	OnlyMaintained bool   `json:"onlyMaintained"`
	Limit          int    `json:"limit" validate:"gte=1,lte=15"`
}

// Normalize trims text fields and applies the default limit when none was
// given. It does not validate.
func (f SearchFilters) Normalize() SearchFilters {
	f.Topic = strings.TrimSpace(f.Topic)
	f.Language = strings.TrimSpace(f.Language)
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	return f
}

// MinStarsValue returns the minimum star count, 0 when unset.
func (f SearchFilters) MinStarsValue() int {
	if f.MinStars == nil {
		return 0
	}
	return *f.MinStars
}

// Validate checks f as-is and returns a *ValidationError describing the
// first offending field.
func (f SearchFilters) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Msg: err.Error()}
	}

	fe := verrs[0]
	switch fe.Field() {
	case "Topic":
		return &ValidationError{Field: "topic", Msg: "topic must not be empty"}
	case "MinStars":
		return &ValidationError{Field: "minStars", Msg: "minStars must be a non-negative integer"}
	case "Limit":
		return &ValidationError{Field: "limit", Msg: fmt.Sprintf("limit must be between 1 and %d", MaxLimit)}
	}
	return &ValidationError{Field: fe.Field(), Msg: fe.Error()}
}

// ValidationError wraps a user-facing validation message.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }
