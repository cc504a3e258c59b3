package project

import (
	"database/sql/driver"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/parlemonde/clap-sub002/core"
)

var (
	textAlignTag  = "textalign"
	textAlignText = "{0} must be one of left, center, right or justify"
	textAligns    = map[string]bool{"left": true, "center": true, "right": true, "justify": true}

	statusTag  = "status"
	statusText = "{0} is not a valid sequence status"
)

// InitValidators registers the project validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterCustomTypeFunc(nullValuer, null.Int{}, null.String{})

	_ = validate.RegisterValidation(textAlignTag, textAlignValidation)
	registerTranslation(validate, translator, textAlignTag, textAlignText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	registerTranslation(validate, translator, statusTag, statusText)
}

// registerTranslation is like core.RegisterCustomTranslation but passes the field name as {0}.
func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// nullValuer lets validation tags apply to the value of null types (nil when not set).
func nullValuer(field reflect.Value) interface{} {
	if valuer, ok := field.Interface().(driver.Valuer); ok {
		val, err := valuer.Value()
		if err == nil {
			return val
		}
	}
	return nil
}

func textAlignValidation(fl validator.FieldLevel) bool {
	return textAligns[fl.Field().String()]
}

func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}

func (np NewProject) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

func (up UpdateProject) Validate(validate *validator.Validate) error {
	return validate.Struct(up)
}

func (ns NewSequence) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

func (us UpdateSequence) Validate(validate *validator.Validate) error {
	if us.Title != nil && us.RemoveTitle {
		return core.NewValidationError(nil, core.FieldError{Field: "removeTitle", Error: "cannot set and remove the title at once"})
	}
	return validate.Struct(us)
}

func (np NewPlan) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

func (up UpdatePlan) Validate(validate *validator.Validate) error {
	return validate.Struct(up)
}

func (sc StatusChange) Validate(validate *validator.Validate) error {
	return validate.Struct(sc)
}
