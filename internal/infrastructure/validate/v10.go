package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	es_translations "github.com/go-playground/validator/v10/translations/es"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core   *validator.Validate
	trans  ut.Translator
	locale string
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator, messages are translated into locale ("es" or "en")
func NewValidator(locale string) *PlaygroundV10 {
	enLocale := en.New()
	esLocale := es.New()
	uni := ut.New(enLocale, enLocale, esLocale)

	validate := validator.New()
	trans, found := uni.GetTranslator(locale)
	if !found {
		locale = "en"
	}
	switch locale {
	case "es":
		es_translations.RegisterDefaultTranslations(validate, trans)
	default:
		en_translations.RegisterDefaultTranslations(validate, trans)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
		}
		return name
	})
	return &PlaygroundV10{
		core:   validate,
		trans:  trans,
		locale: locale,
	}
}

// Struct validate struct, messages are translated into the validator locale
func (v PlaygroundV10) Struct(s interface{}) FieldErrors {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{NewFieldError("", err.Error())}
	}
	result := make(FieldErrors, 0, len(errs))
	for _, item := range errs {
		result = append(result, NewFieldError(trimNamespace(item.Namespace()), item.Translate(v.trans)))
	}
	return result
}

// Var validate a single value, typically a path or query parameter
func (v PlaygroundV10) Var(name string, value interface{}, tag string) *FieldError {
	err := v.core.Var(value, tag)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return NewFieldError(name, err.Error())
	}
	// Var errors carry no field name, the translation starts with an empty one
	return NewFieldError(name, strings.TrimSpace(errs[0].Translate(v.trans)))
}

// AllEmpty check if all fields are empty
//
// names and fields have one to one relationship respect to the order
func (v PlaygroundV10) AllEmpty(names []string, fields ...interface{}) *FieldError {
	if len(names) != len(fields) {
		panic(fmt.Errorf("number of name: %d, fields: %d", len(names), len(fields)))
	}

	for _, s := range fields {
		if err := v.core.Var(s, "required"); err == nil {
			return nil
		}
	}
	if v.locale == "es" {
		return NewFieldError(strings.Join(names, ","), "al menos uno de los campos es obligatorio")
	}
	return NewFieldError(strings.Join(names, ","), "one of the fields should not be empty")
}

// trimNamespace drops the top level struct name, "Lesson.testCases[0].input" becomes
// "testCases[0].input"
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
