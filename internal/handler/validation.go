package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"rollcall/internal/model"
)

var (
	setupValidator sync.Once
	translator     ut.Translator
)

// configureValidator makes gin's validator report JSON field names with english
// messages.
func configureValidator() {
	setupValidator.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_en := en.New()
		translator, _ = ut.New(_en, _en).GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, translator)
	})
}

// bindError turns a ShouldBindJSON failure into a validation error. Only the first
// failing field is reported.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msg := verrs[0].Error()
		if translator != nil {
			msg = verrs[0].Translate(translator)
		}
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	}
	return fmt.Errorf("%w: malformed request body", model.ErrValidation)
}
