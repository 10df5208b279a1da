package application

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/wizard"
)

var (
	appStatusTag  = "appstatus"
	appStatusText = "invalid status, expected one of: " + strings.Join(StatusNames(), ", ")

	unknownFieldText = "unknown field"
	emailText        = "must be a valid email address"
	numberText       = "must be a number"
	boolText         = "must be true or false"
	dateText         = "must be a date formatted as YYYY-MM-DD"
	listText         = "must be a list of entries"
	textText         = "must be text"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(appStatusTag, appStatusValidation)
	core.RegisterCustomTranslation(validate, translator, appStatusTag, appStatusText)
}

func appStatusValidation(fl validator.FieldLevel) bool {
	switch st := fl.Field().Interface().(type) {
	case Status:
		return st.IsValid()
	case string:
		return Status(st).IsValid()
	}
	return false
}

// validateData checks a submitted draft against its form schema: unknown fields, required
// fields of every section, and the format of every non-empty value.
func validateData(validate *validator.Validate, schema *wizard.Schema, data wizard.Draft) []core.FieldError {
	var errs []core.FieldError

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	known := schema.FieldNames()
	for _, name := range names {
		if _, _, ok := schema.Field(name); !ok {
			errs = append(errs, core.FieldError{Field: name, Error: unknownFieldText + core.DidYouMean(name, known)})
		}
	}

	for n := 1; n <= schema.Len(); n++ {
		sec, _ := schema.Section(n)
		missing := make(map[string]bool)
		for _, name := range schema.MissingFields(n, data) {
			missing[name] = true
		}
		for _, f := range sec.Fields {
			if missing[f.Name] {
				errs = append(errs, core.FieldError{Field: f.Name, Error: core.RequiredText})
				continue
			}
			errs = append(errs, checkValue(validate, f, f.Name, data[f.Name])...)
		}
	}
	return errs
}

func checkValue(validate *validator.Validate, f wizard.Field, path string, value interface{}) []core.FieldError {
	if wizard.IsEmpty(value) {
		return nil
	}
	fail := func(text string) []core.FieldError {
		return []core.FieldError{{Field: path, Error: text}}
	}

	switch f.Kind {
	case wizard.KindText:
		if _, ok := value.(string); !ok {
			return fail(textText)
		}
	case wizard.KindEmail:
		s, ok := value.(string)
		if !ok || validate.Var(s, "email") != nil {
			return fail(emailText)
		}
	case wizard.KindBool:
		if _, ok := value.(bool); !ok {
			return fail(boolText)
		}
	case wizard.KindNumber:
		if !isNumber(value) {
			return fail(numberText)
		}
	case wizard.KindDate:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(wizard.DateLayout, v); err != nil {
				return fail(dateText)
			}
		default:
			return fail(dateText)
		}
	case wizard.KindChoice:
		s, _ := value.(string)
		for _, opt := range f.Options {
			if s == opt {
				return nil
			}
		}
		return fail("must be one of: " + strings.Join(f.Options, ", "))
	case wizard.KindList:
		entries, ok := toEntries(value)
		if !ok {
			return fail(listText)
		}
		var errs []core.FieldError
		for i, entry := range entries {
			prefix := fmt.Sprintf("%s[%d]", path, i)
			for name, v := range entry {
				ef, found := entryField(f, name)
				if !found {
					errs = append(errs, core.FieldError{Field: prefix + "." + name, Error: unknownFieldText})
					continue
				}
				errs = append(errs, checkValue(validate, ef, prefix+"."+name, v)...)
			}
		}
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return errs
	}
	return nil
}

func entryField(list wizard.Field, name string) (wizard.Field, bool) {
	for _, f := range list.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return wizard.Field{}, false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func toEntries(v interface{}) ([]wizard.Entry, bool) {
	switch val := v.(type) {
	case []wizard.Entry:
		return val, true
	case []map[string]interface{}:
		entries := make([]wizard.Entry, len(val))
		for i, e := range val {
			entries[i] = e
		}
		return entries, true
	case []interface{}:
		entries := make([]wizard.Entry, 0, len(val))
		for _, e := range val {
			switch m := e.(type) {
			case wizard.Entry:
				entries = append(entries, m)
			case map[string]interface{}:
				entries = append(entries, m)
			default:
				return nil, false
			}
		}
		return entries, true
	}
	return nil, false
}
