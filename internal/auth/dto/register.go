package dto

type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FullName  string `json:"fullName" validate:"omitempty,max=255"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type RegisterResponse struct {
	User UserOutput `json:"user"`
}
