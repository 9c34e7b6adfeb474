package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"unicode"

	"messer/internal/apperror"

	"github.com/go-playground/validator/v10"
)

// maxUsernameLength matches the users.username column.
const maxUsernameLength = 50

var contentValidate *validator.Validate

func init() {
	contentValidate = validator.New()
	contentValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = contentValidate.RegisterValidation("username", validateUsername)
}

func validateUsername(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len([]rune(s)) > maxUsernameLength {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func schemaError(fields []FieldError) *apperror.Error {
	return apperror.New(apperror.KindValidation, apperror.CodeSchema, "content failed validation").WithDetails(fields)
}

// decodeContent fills dst from raw and runs its validate tags. A missing or
// null content is read as an empty object.
func decodeContent(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || isNull(raw) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				return schemaError([]FieldError{{Field: "content", Rule: "type", Param: "object"}})
			}
			return schemaError([]FieldError{{Field: typeErr.Field, Rule: "type", Param: typeErr.Type.String()}})
		}
		return schemaError([]FieldError{{Field: "content", Rule: "type", Param: "object"}})
	}

	err := contentValidate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Internal(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return schemaError(fields)
}
