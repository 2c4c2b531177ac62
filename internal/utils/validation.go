package contextutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidEmail checks if an email address is valid using go-playground/validator
func IsValidEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// IsValidHTTPURL reports whether s is an absolute http(s) URL
func IsValidHTTPURL(s string) bool {
	return validate.Var(s, "http_url") == nil
}

// IsValidHexColor reports whether s is a CSS hex color such as #1890ff
func IsValidHexColor(s string) bool {
	return validate.Var(s, "hexcolor") == nil
}
