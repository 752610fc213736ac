package crud

import (
	"fmt"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// fieldErrors collects per-field validation messages
type fieldErrors map[string]string

func (fe fieldErrors) add(field, format string, args ...interface{}) {
	if _, exists := fe[field]; !exists {
		fe[field] = fmt.Sprintf(format, args...)
	}
}

// err returns the validation error of resource, nil when nothing failed
func (fe fieldErrors) err(resource string) error {
	if len(fe) == 0 {
		return nil
	}
	return ormerrors.Validation(resource, fe)
}

// hookError wraps a hook failure with the hook type
func hookError(hook string, err error) error {
	return fmt.Errorf("%s hook failed: %w", hook, err)
}
