package wiki

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks the struct tags of input and reports the first failures as a
// BadRequest naming the offending fields.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return badRequestf("invalid input: %v", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeField(fe))
	}
	return badRequestf("invalid input: %s", strings.Join(problems, "; "))
}

func describeField(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must not be empty", field)
	default:
		return fmt.Sprintf("%s failed rule %q", field, fe.Tag())
	}
}

func toSnake(name string) string {
	var builder strings.Builder
	prevLower := false
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				builder.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
