package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	// docidPatterns caches compiled patterns per prefix/digit-count spec so
	// repeated struct validation does not recompile regular expressions.
	docidPatterns sync.Map
)

// Validator returns the shared struct validator with the document-specific
// custom validations registered. The instance is safe for concurrent use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("docid", validateDocumentID); err != nil {
			panic(fmt.Sprintf("domain: register docid validation: %v", err))
		}
	})
	return validate
}

// ValidateStruct runs struct-tag validation against any domain type.
// It returns the validator's error describing the first offending fields,
// or nil when the value satisfies all constraints.
func ValidateStruct(v any) error {
	return Validator().Struct(v)
}

// validateDocumentID implements the "docid" tag. The parameter encodes the
// expected prefix and digit count as "PREFIX-N", e.g. "BRD-6" accepts
// BRD-000123 and rejects BRD-123 or BRD-ABC123.
func validateDocumentID(fl validator.FieldLevel) bool {
	param := fl.Param()
	re, err := docidPattern(param)
	if err != nil {
		return false
	}
	return re.MatchString(fl.Field().String())
}

func docidPattern(param string) (*regexp.Regexp, error) {
	if cached, ok := docidPatterns.Load(param); ok {
		return cached.(*regexp.Regexp), nil
	}

	prefix, digitsSpec, ok := strings.Cut(param, "-")
	if !ok {
		return nil, fmt.Errorf("malformed docid parameter %q", param)
	}
	digits, err := strconv.Atoi(digitsSpec)
	if err != nil || digits <= 0 {
		return nil, fmt.Errorf("malformed docid digit count %q", digitsSpec)
	}

	re, err := regexp.Compile(fmt.Sprintf(`^%s-[0-9]{%d}$`, prefix, digits))
	if err != nil {
		return nil, err
	}
	docidPatterns.Store(param, re)
	return re, nil
}
