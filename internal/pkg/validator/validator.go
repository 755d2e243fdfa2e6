package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	registerCustomValidations()
}

func registerCustomValidations() {
	// Output format validation
	validate.RegisterValidation("img_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		validFormats := []string{"jpeg", "jpg", "png", "webp", "avif", "gif", "tiff", "auto", ""}
		for _, f := range validFormats {
			if format == f {
				return true
			}
		}
		return false
	})

	// Fit mode validation, used by thumbnail/resize operations
	validate.RegisterValidation("fit_mode", func(fl validator.FieldLevel) bool {
		fit := fl.Field().String()
		validFits := []string{"cover", "contain", "fill", ""}
		for _, f := range validFits {
			if fit == f {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "img_format":
			errors[field] = "Invalid format. Must be: jpeg, jpg, png, webp, avif, gif, tiff, or auto"
		case "fit_mode":
			errors[field] = "Invalid fit. Must be: cover, contain, or fill"
		case "oneof":
			errors[field] = "Invalid value. Must be one of: " + err.Param()
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
