package identity

import "time"

// User represents a user account. It carries the superuser flag and
// two-factor state alongside the basic profile.
type User struct {
	ID               int64
	Email            string
	Name             string
	PasswordHash     string
	IsSuperuser      bool
	IsActive         bool
	TwoFactorEnabled bool
	OTPSecret        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GetID implements rbac.Principal.
func (u *User) GetID() int64 {
	return u.ID
}

// IsSuperUser implements rbac.Principal.
func (u *User) IsSuperUser() bool {
	return u.IsSuperuser
}

// IsActiveAccount implements rbac.Principal.
func (u *User) IsActiveAccount() bool {
	return u.IsActive
}

// TwoFactorState reports where the account sits in the enrollment lifecycle.
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "DISABLED"
	TwoFactorPending  TwoFactorState = "PENDING_VERIFICATION"
	TwoFactorEnabled  TwoFactorState = "ENABLED"
)

// TwoFactor returns the current enrollment state.
func (u *User) TwoFactor() TwoFactorState {
	switch {
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	case u.OTPSecret != "":
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}
