// Package validation validates drafts and payloads before they are sent to the backend.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/go-playground/validator/v10"
	"k8s.io/apimachinery/pkg/api/resource"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// registering a well formed tag on a fresh engine can't fail
		_ = validate.RegisterValidation("quantity", quantity)
	})
	return validate
}

// quantity validates Kubernetes resource quantities like 500m or 1Gi.
func quantity(fl validator.FieldLevel) bool {
	_, err := resource.ParseQuantity(fl.Field().String())
	return err == nil
}

// Struct validates s using its validate tags. The returned error satisfies [errdef.IsValidation]
// and lists every failed field.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("failed to validate: %v", err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, message(fieldError))
	}
	return errdef.NewValidation("invalid %s", strings.Join(messages, ", "))
}

func message(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "oneof":
		return fmt.Sprintf("%s: %q must be one of %s", field, fe.Value(), fe.Param())
	case "quantity":
		return fmt.Sprintf("%s: %q is not a valid quantity", field, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s: %v must be %s %s", field, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s: %q failed %s", field, fe.Value(), fe.Tag())
	}
}
