package domain

// Principal is an authenticated caller, resolved once at the boundary.
// It is one of TokenPrincipal, FederatedPrincipal or KeyPrincipal.
type Principal interface {
	principal()
}

// TokenPrincipal comes from a verified identity token.
type TokenPrincipal struct {
	UserID int64
	Email  string
}

// FederatedPrincipal comes from a federated login callback and is resolved
// to a user by subject, then email, creating the user on first sight.
type FederatedPrincipal struct {
	Email   string
	Name    string
	Subject string
}

// KeyPrincipal comes from a verified API key and is limited to its permissions.
type KeyPrincipal struct {
	UserID      int64
	KeyID       string
	Permissions []Permission
}

func (TokenPrincipal) principal()     {}
func (FederatedPrincipal) principal() {}
func (KeyPrincipal) principal()       {}

// Caller is the canonical identity handed to the core: a user id plus the
// permissions the principal may exercise.
type Caller struct {
	UserID      int64
	ViaAPIKey   bool
	Permissions []Permission
}

// Can reports whether the caller may exercise p.
func (c Caller) Can(p Permission) bool {
	if !c.ViaAPIKey {
		return true
	}
	for _, have := range c.Permissions {
		if have == p {
			return true
		}
	}
	return false
}
