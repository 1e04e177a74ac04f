package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	rollNumberPattern   = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	studentPhonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)
	accountPhonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phoneNoise          = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// Fields renders the failures as a field -> message map for API consumers.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, err := range v {
		if _, exists := out[err.Field]; exists {
			continue
		}
		out[err.Field] = Message(err.Tag, err.Param)
	}
	return out
}

// Message returns a human readable message for a validation tag.
func Message(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Ensure this field has at least " + param + " characters."
	case "max":
		return "Ensure this field has no more than " + param + " characters."
	case "len":
		return "Ensure this field has exactly " + param + " characters."
	case "numeric":
		return "Enter a number."
	case "oneof":
		return "Must be one of: " + param + "."
	case "eqfield":
		return "Fields didn't match."
	case "rollnumber":
		return "Roll number must be alphanumeric."
	case "phone":
		return "Phone number must be entered in the format: '+999999999'. Up to 15 digits allowed."
	case "intlphone":
		return "Enter a valid phone number."
	case "gmail":
		return "Gmail address must end with @gmail.com."
	default:
		return "Invalid value."
	}
}

// ValidateStruct validates a struct using registered rules.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

// IsRollNumber reports whether value is a non-empty alphanumeric roll number.
func IsRollNumber(value string) bool {
	return rollNumberPattern.MatchString(value)
}

// IsStudentPhone matches the optional leading +, optional 1 and 9-15 digits.
func IsStudentPhone(value string) bool {
	return studentPhonePattern.MatchString(value)
}

// NormalizeAccountPhone strips spaces, dashes and parentheses.
func NormalizeAccountPhone(value string) string {
	return phoneNoise.Replace(strings.TrimSpace(value))
}

// IsAccountPhone validates an E.164-like account phone after normalisation.
func IsAccountPhone(value string) bool {
	return accountPhonePattern.MatchString(NormalizeAccountPhone(value))
}

// IsGmail reports whether value is a gmail.com address.
func IsGmail(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	at := strings.LastIndex(value, "@")
	return at > 0 && value[at:] == "@gmail.com"
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			comma := strings.Index(name, ",")
			if comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation("rollnumber", func(fl validator.FieldLevel) bool {
			return IsRollNumber(fl.Field().String())
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return IsStudentPhone(fl.Field().String())
		})
		_ = validate.RegisterValidation("intlphone", func(fl validator.FieldLevel) bool {
			return IsAccountPhone(fl.Field().String())
		})
		_ = validate.RegisterValidation("gmail", func(fl validator.FieldLevel) bool {
			return IsGmail(fl.Field().String())
		})
	})
	return validate
}
