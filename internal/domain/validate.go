package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New(validator.WithRequiredStructEnabled())

func init() {
	_ = validatorInstance.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return ValidID(fl.Field().String())
	})
	_ = validatorInstance.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	validatorInstance.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a well-formed entity id (canonical UUID form).
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Validate checks v against its `validate` struct tags and maps the first
// failing field, in declaration order, onto the error taxonomy. An
// "entityid" failure on a ConversationID or MessageID field yields the
// matching invalid-id error; every other failure is ErrInvalidPayload.
func Validate(v any) error {
	err := validatorInstance.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fe := fieldErrs[0]
	if fe.Tag() == "entityid" {
		switch fe.StructField() {
		case "ConversationID":
			return fmt.Errorf("%w: %q", ErrInvalidConversationID, fe.Value())
		case "MessageID":
			return fmt.Errorf("%w: %q", ErrInvalidMessageID, fe.Value())
		}
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidPayload, fe.Field(), fe.Tag())
}
