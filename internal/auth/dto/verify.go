package dto

type VerifyChallengeInput struct {
	Token  string `json:"token" validate:"required"`
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

type VerifyApprovedResponse struct {
	Approved bool       `json:"approved"`
	User     UserOutput `json:"user"`
}

type VerifyRejectedResponse struct {
	Approved bool   `json:"approved"`
	Message  string `json:"message"`
}
