package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the `validate` struct tags of v. Failures wrap
// common.ErrorValidation and name the offending fields.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %v", common.ErrorValidation, err)
}
