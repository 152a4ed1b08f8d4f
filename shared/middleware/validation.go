package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// requestValidator reports fields under their JSON names.
var requestValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	return v
}()

// Violation is one rule a request body broke.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ValidationFailure struct {
	Message    string      `json:"message"`
	Violations []Violation `json:"violations"`
}

// ValidateRequest checks a bound request body against its validate tags. It
// returns nil when the body is acceptable.
func ValidateRequest(req any) []Violation {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{Rule: "invalid", Message: err.Error()}}
	}
	out := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: describe(req, fe),
		})
	}
	return out
}

func describe(req any, fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be an email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "uuid":
		if strings.HasSuffix(field, "AccountId") {
			return field + " must be an account id"
		}
		if field == "customerId" {
			return field + " must be a customer id"
		}
		return field + " must be an id"
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, jsonFieldOf(req, fe.Param()))
	default:
		return field + " is invalid"
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// jsonFieldOf maps a Go field name of req, as used in cross-field tags, to
// its JSON name.
func jsonFieldOf(req any, goName string) string {
	t := reflect.TypeOf(req)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return goName
	}
	if f, ok := t.FieldByName(goName); ok {
		return jsonName(f)
	}
	return goName
}

func RespondWithValidationError(c *gin.Context, violations []Violation) {
	c.JSON(http.StatusBadRequest, ValidationFailure{
		Message:    "Request validation failed",
		Violations: violations,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"message": message})
}
