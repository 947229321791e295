package auth

import "time"

// User is the durable identity record
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ProfileImage string       `json:"profileImage,omitempty"`
	ConnectState ConnectState `json:"connectState"`
	PasswordHash string       `json:"-"` // Never serialized
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ConnectState is the presence of a user as seen through the presence socket
type ConnectState string

const (
	ConnectStateOffline ConnectState = "OFFLINE"
	ConnectStateOnline  ConnectState = "ONLINE"
)

// HasPassword reports whether the account can log in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Sanitized returns a copy with the password hash stripped
func (u *User) Sanitized() *User {
	clone := *u
	clone.PasswordHash = ""
	return &clone
}

// Public returns the cacheable projection of the user
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ProfileImage,
		ConnectState: u.ConnectState,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// PublicUser is the projection returned to clients and stored in the session cache.
// It has no password hash and no challenge state.
type PublicUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ProfileImage string       `json:"profileImage,omitempty"`
	ConnectState ConnectState `json:"connectState"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// DeviceType tags a passkey as bound to one authenticator or synced across devices
type DeviceType string

const (
	DeviceTypeSingle DeviceType = "singleDevice"
	DeviceTypeMulti  DeviceType = "multiDevice"
)

// DeviceTypeFor derives the device type from the backup eligibility flag
func DeviceTypeFor(backupEligible bool) DeviceType {
	if backupEligible {
		return DeviceTypeMulti
	}
	return DeviceTypeSingle
}

// Credential is a registered WebAuthn passkey. Owned by exactly one user.
type Credential struct {
	ID              []byte     `json:"-"`
	UserID          string     `json:"userId"`
	PublicKey       []byte     `json:"-"`
	AttestationType string     `json:"attestationType,omitempty"`
	AAGUID          []byte     `json:"-"`
	SignCount       uint32     `json:"signCount"`
	Transports      []string   `json:"transports"`
	DeviceType      DeviceType `json:"deviceType"`
	BackedUp        bool       `json:"backedUp"`
	BackupEligible  bool       `json:"backupEligible"`
	UserVerified    bool       `json:"userVerified"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
}

// SessionMethod records how a session was established
type SessionMethod string

const (
	SessionMethodRegister SessionMethod = "register"
	SessionMethodPassword SessionMethod = "password"
	SessionMethodPasskey  SessionMethod = "passkey"
	SessionMethodRefresh  SessionMethod = "refresh"
)

// Session is an append-only audit record of a successful authentication
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	IP        string        `json:"ip"`
	UserAgent string        `json:"userAgent"`
	Method    SessionMethod `json:"method"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AuthContext holds the authenticated subject of a request
type AuthContext struct {
	UserID    string
	ExpiresAt time.Time
}
