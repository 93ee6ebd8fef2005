package model

// Profile holds a user's account and display attributes.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Website     string `json:"website"`
	AvatarURL   string `json:"avatar_url"`
	CreatedAt   string `json:"created_at"`
}

// SSHKey is a registered public key in authorized_keys format. The id is
// the first 8 hex characters of sha256 over the key text.
type SSHKey struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// TwoFactor is the per-user TOTP state. Secret set with Enabled false means
// setup has started but the user has not yet confirmed a code.
type TwoFactor struct {
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret"`
}
