package httpapi

import "github.com/go-playground/validator/v10"

// validatorAdapter wraps go-playground/validator/v10 the way the pipeline
// validates request envelopes at the transport boundary, distinct from the
// domain-level field checks each adapter's ParseIncoming performs.
type validatorAdapter struct {
	v *validator.Validate
}

func newValidatorAdapter() *validatorAdapter {
	return &validatorAdapter{v: validator.New()}
}

func (va *validatorAdapter) Struct(s any) error {
	return va.v.Struct(s)
}
