// Package forms declares the dashboard's input schemas and turns binding
// failures into per-field messages.
package forms

import (
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FormKey holds errors that do not belong to a single field.
const FormKey = "_form"

// FieldErrors maps a form field name to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+fe[field])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Get returns the message for field, if any.
func (fe FieldErrors) Get(field string) string {
	return fe[field]
}

// Has reports whether field failed validation.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Schema is implemented by every bindable form.
type Schema interface {
	// numericFields lists inputs that must parse as numbers before binding;
	// true marks integer-only inputs.
	numericFields() map[string]bool
	// messages maps "field.tag" or "field" to the text shown next to the input.
	messages() map[string]string
}

var registerOnce sync.Once

// useFormFieldNames makes validation errors report the `form` tag instead of
// the Go field name.
func useFormFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// maxMemory matches gin's default multipart memory limit.
const maxMemory = 32 << 20

// Bind decodes the request body into form and validates it. Strings are
// trimmed before validation, password fields excepted. Every input that
// decodes is kept in form, so a failed bind can be shown again for
// correction. The returned error is a FieldErrors whenever the failure is
// attributable to the input.
func Bind(c *gin.Context, form Schema) error {
	useFormFieldNames()

	values, err := postValues(c.Request)
	if err != nil {
		return FieldErrors{FormKey: "Formulaire invalide"}
	}

	numErrs := checkNumeric(values, form)
	for field := range numErrs {
		delete(values, field)
	}
	if err := binding.MapFormWithTag(form, values, "form"); err != nil {
		return FieldErrors{FormKey: "Formulaire invalide"}
	}
	trimStrings(form)

	errs := FieldErrors{}
	if err := binding.Validator.ValidateStruct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return FieldErrors{FormKey: "Formulaire invalide"}
		}
		errs = translate(verrs, form.messages())
	}
	for field, msg := range numErrs {
		errs[field] = msg
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// postValues returns a copy of the url-encoded or multipart body values.
func postValues(req *http.Request) (map[string][]string, error) {
	if err := req.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	values := make(map[string][]string, len(req.PostForm))
	for k, v := range req.PostForm {
		values[k] = v
	}
	return values, nil
}

// checkNumeric reports numeric inputs that do not parse. Parsable values are
// replaced by their trimmed form in values.
func checkNumeric(values map[string][]string, form Schema) FieldErrors {
	errs := FieldErrors{}
	for field, integer := range form.numericFields() {
		if len(values[field]) == 0 {
			continue
		}
		raw := strings.TrimSpace(values[field][0])
		values[field] = []string{raw}
		if raw == "" {
			continue
		}
		var err error
		if integer {
			_, err = strconv.Atoi(raw)
		} else {
			_, err = strconv.ParseFloat(raw, 64)
		}
		if err != nil {
			errs[field] = "Veuillez saisir un nombre"
			if integer {
				errs[field] = "Veuillez saisir un nombre entier"
			}
		}
	}
	return errs
}

func trimStrings(form any) {
	v := reflect.ValueOf(form)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.String || !f.CanSet() {
			continue
		}
		if strings.HasPrefix(t.Field(i).Tag.Get("form"), "password") {
			continue
		}
		f.SetString(strings.TrimSpace(f.String()))
	}
}

func translate(verrs validator.ValidationErrors, messages map[string]string) FieldErrors {
	errs := FieldErrors{}
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := errs[field]; seen {
			continue
		}
		if msg, ok := messages[field+"."+fe.Tag()]; ok {
			errs[field] = msg
			continue
		}
		if msg, ok := messages[field]; ok {
			errs[field] = msg
			continue
		}
		errs[field] = "Valeur invalide"
	}
	return errs
}
