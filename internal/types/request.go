//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Keyword limits.
const (
	MaxKeywords      = 10
	MaxKeywordLength = 50
)

// keywordPattern allows letters, digits, underscore, whitespace, CJK ideographs,
// hyphen, comma, period, CJK punctuation and full-width forms.
var keywordPattern = regexp.MustCompile(`^[\p{L}\p{N}_\s\x{4e00}-\x{9fff}\x{3400}-\x{4dbf}\-,.\x{3000}-\x{303f}\x{ff00}-\x{ffef}]+$`)

var keywordValidate = newKeywordValidator()

func newKeywordValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("keyword", func(fl validator.FieldLevel) bool {
		return isValidKeyword(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func isValidKeyword(kw string) bool {
	for _, r := range kw {
		if unicode.IsControl(r) {
			return false
		}
	}
	return keywordPattern.MatchString(kw)
}

// MonitorRequest starts a monitoring run.
type MonitorRequest struct {
	Keywords []string `json:"keywords" validate:"required,min=1,max=10,dive,max=50,keyword"`
}

// MonitorResponse acknowledges a run start request.
type MonitorResponse struct {
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status"`
	Message string    `json:"message"`
}

// Validate trims keywords, drops empty entries and checks the remainder.
// On success r.Keywords holds the normalized list.
func (r *MonitorRequest) Validate() error {
	if len(r.Keywords) == 0 {
		return &ValidationError{Field: "keywords", Message: "at least one keyword is required"}
	}
	if len(r.Keywords) > MaxKeywords {
		return &ValidationError{Field: "keywords", Message: fmt.Sprintf("at most %d keywords are allowed", MaxKeywords)}
	}

	cleaned := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		return &ValidationError{Field: "keywords", Message: "at least one non-empty keyword is required"}
	}

	candidate := MonitorRequest{Keywords: cleaned}
	if err := keywordValidate.Struct(&candidate); err != nil {
		return toValidationError(err)
	}
	r.Keywords = cleaned
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "keywords", Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "max":
		return &ValidationError{Field: "keywords", Message: fmt.Sprintf("keyword exceeds %d characters", MaxKeywordLength)}
	case "keyword":
		return &ValidationError{Field: "keywords", Message: "keyword contains invalid characters"}
	default:
		return &ValidationError{Field: "keywords", Message: fe.Error()}
	}
}
