package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("e164like", validateE164Like)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// validateE164Like accepts numbers the provider hands out: an optional
// leading plus and 7 to 15 digits. Stricter than "any string", looser than
// full E.164 country-code validation.
func validateE164Like(fl validator.FieldLevel) bool {
	number := fl.Field().String()
	number = strings.TrimPrefix(number, "+")

	if len(number) < 7 || len(number) > 15 {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}
