// Package domain contains entities and the rules that depend on neither
// storage nor transport.
package domain

// Identity is the claims record handed over by the identity provider.
// It is populated once at the trust boundary and treated as read-only
// everywhere else.
type Identity struct {
	Subject string   `json:"subject"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Roles   []string `json:"roles"`
}

// DisplayName falls back to the email when no name claim was present.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// PrimaryRole is the first assigned role, or "" when none are assigned.
func (i Identity) PrimaryRole() string {
	if len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
