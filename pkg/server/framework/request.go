package framework

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/goccy/go-json"
	"gopkg.in/go-playground/validator.v9"
	entranslations "gopkg.in/go-playground/validator.v9/translations/en"

	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

var (
	validate *validator.Validate
	lang     ut.Translator

	didPattern       = regexp.MustCompile(`^did:[a-z0-9]+:\S+$`)
	sha256HexPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// customValidations are the request tags beyond validator's built-ins, with their english message.
var customValidations = []struct {
	tag     string
	message string
	code    svcframework.ErrorCode
	valid   func(string) bool
}{
	{
		tag:     "did",
		message: "{0} must be a DID of the form did:<method>:<id>",
		code:    svcframework.CodeMalformedDID,
		valid:   didPattern.MatchString,
	},
	{
		tag:     "sha256hex",
		message: "{0} must be a hex encoded sha-256 digest",
		code:    "InvalidField",
		valid:   sha256HexPattern.MatchString,
	},
}

func init() {
	validate = validator.New()

	enLocale := en.New()
	lang, _ = ut.New(enLocale, enLocale).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, lang)

	// report JSON names rather than struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, v := range customValidations {
		v := v
		_ = validate.RegisterValidation(v.tag, func(fl validator.FieldLevel) bool {
			return v.valid(fl.Field().String())
		})
		_ = validate.RegisterTranslation(v.tag, lang, func(trans ut.Translator) error {
			return trans.Add(v.tag, v.message, true)
		}, func(trans ut.Translator, fe validator.FieldError) string {
			msg, _ := trans.T(v.tag, fe.Field())
			return msg
		})
	}
}

// Decode reads an HTTP request body looking for a JSON document.
// The body is decoded into the value provided.
//
// The provided value is checked for validation tags if it's a struct.
func Decode(r *http.Request, val any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return NewRequestError(errors.New("request body is empty"), http.StatusBadRequest)
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return NewRequestError(err, http.StatusBadRequest)
	}
	return ValidateRequest(val)
}

// ValidateRequest checks val against its validation tags. Failures come back as a 400 listing every field; the
// code is taken from the first failing tag.
func ValidateRequest(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) {
		return err
	}

	fieldErrors := make([]FieldError, 0, len(vErrors))
	for _, vError := range vErrors {
		fieldErrors = append(fieldErrors, FieldError{
			Field: vError.Field(),
			Error: vError.Translate(lang),
		})
	}
	return &SafeError{
		Err:        errors.New("field validation error"),
		StatusCode: http.StatusBadRequest,
		Code:       string(codeForTag(vErrors[0].Tag())),
		Fields:     fieldErrors,
	}
}

func codeForTag(tag string) svcframework.ErrorCode {
	for _, v := range customValidations {
		if v.tag == tag {
			return v.code
		}
	}
	if tag == "required" {
		return svcframework.CodeMissingRequiredField
	}
	return "InvalidField"
}
