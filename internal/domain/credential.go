package domain

// Credential is a caller's override of one provider platform. At most one
// active credential exists per (caller, platform).
type Credential struct {
	CallerID string `json:"caller_id,omitempty"`
	Platform string `json:"platform"`
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	Model    string `json:"model"`
	Active   bool   `json:"active"`
}

// MaskedToken returns the token with everything but the last four characters hidden.
func (c Credential) MaskedToken() string {
	if len(c.Token) <= 4 {
		return "****"
	}
	return "****" + c.Token[len(c.Token)-4:]
}
