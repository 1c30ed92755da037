package dto

type LoginInput struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,max=72"`
	CaptchaToken string `json:"captchaToken"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
}

// LoginVerifiedResponse is returned when the login was low risk and cookies were set.
type LoginVerifiedResponse struct {
	RequiresVerification bool       `json:"requiresVerification"`
	User                 UserOutput `json:"user"`
}

// LoginChallengeResponse is returned when an approval email was sent instead.
type LoginChallengeResponse struct {
	RequiresVerification bool   `json:"requiresVerification"`
	UserID               int64  `json:"userId"`
	Message              string `json:"message"`
}
