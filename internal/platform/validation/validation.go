package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"ttrpg-tracker/internal/domain/inventory"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the project's custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("category", validateCategory)
		instance = v
	})
	return instance
}

func validateCategory(fl validator.FieldLevel) bool {
	return inventory.Category(fl.Field().String()).Valid()
}

// Struct validates s and flattens field failures into one readable message.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describe(fe))
	}
	return errors.New(strings.Join(parts, "; "))
}

// Email reports whether addr is a syntactically valid address.
func Email(addr string) bool {
	return Validator().Var(addr, "required,email") == nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "category":
		return fmt.Sprintf("%s %q is not a known category", field, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	default:
		return field + " is invalid"
	}
}
