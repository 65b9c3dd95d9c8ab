package handler

import (
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/validate"
)

// echoValidator adapts validate.Validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validate.Validator
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
func NewValidator() *echoValidator {
	return &echoValidator{v: validate.New()}
}

// Validate satisfies the echo.Validator interface. Failures are reported as
// bad requests carrying every field message.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		return domain.Wrap(err, domain.KindBadRequest, err.Error())
	}
	return nil
}
