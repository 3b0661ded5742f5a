package form

import (
	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type AddUserRequest struct {
	*entity.User
}

func (r *AddUserRequest) Validate() error {
	return ValidateStruct(r,
		v.Field(&r.Id, v.Required, v.Length(1, 64)),
		v.Field(&r.Email, v.Required, is.EmailFormat),
		v.Field(&r.DisplayName, v.Length(0, 255)),
	)
}
