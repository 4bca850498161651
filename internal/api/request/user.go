package request

type CreateUser struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type AddContactMethod struct {
	Channel string `json:"channel" validate:"required,oneof=email sms voice chat push"`
	Address string `json:"address" validate:"required,max=255"`
}
