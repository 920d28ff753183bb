package entity

import "time"

// Metadata is a free-form JSON object. The provider leaves its schema open.
type Metadata map[string]any

// Identity is one linked login for a remote user.
type Identity struct {
	Connection string `json:"connection"`
	Provider   string `json:"provider"`
	IsSocial   bool   `json:"isSocial"`
}

// RemoteUser is a user record in the provider's hosted directory. UserID is
// assigned by the provider and is the only identity this package relies on.
type RemoteUser struct {
	UserID        string     `json:"user_id" db:"user_id"`
	Email         string     `json:"email,omitempty" db:"email"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	Username      string     `json:"username,omitempty" db:"username"`
	Connection    string     `json:"connection,omitempty" db:"connection"`
	Identities    []Identity `json:"identities,omitempty" db:"-"`
	UserMetadata  Metadata   `json:"user_metadata,omitempty" db:"-"`
	AppMetadata   Metadata   `json:"app_metadata,omitempty" db:"-"`
	CreatedAt     *time.Time `json:"created_at,omitempty" db:"-"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" db:"-"`
}

// PrimaryConnection returns Connection, or the first identity's connection
// when the provider only reports identities.
func (u RemoteUser) PrimaryConnection() string {
	if u.Connection != "" {
		return u.Connection
	}
	if len(u.Identities) > 0 {
		return u.Identities[0].Connection
	}
	return ""
}

// UserSpec is the body of a create-user call. The verification flags are
// always sent, even when false.
type UserSpec struct {
	Connection    string   `json:"connection"`
	Email         string   `json:"email"`
	Password      string   `json:"password,omitempty"`
	Username      string   `json:"username,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	VerifyEmail   bool     `json:"verify_email"`
	UserMetadata  Metadata `json:"user_metadata"`
	AppMetadata   Metadata `json:"app_metadata"`
}

// UserOverrides replaces generated create fields. Zero values leave the
// generated value in place.
type UserOverrides struct {
	Connection    string
	Email         string
	Password      string
	Username      string
	EmailVerified *bool
	VerifyEmail   *bool
	UserMetadata  Metadata
	AppMetadata   Metadata
}

// Apply returns spec with every set override copied over it.
func (o UserOverrides) Apply(spec UserSpec) UserSpec {
	if o.Connection != "" {
		spec.Connection = o.Connection
	}
	if o.Email != "" {
		spec.Email = o.Email
	}
	if o.Password != "" {
		spec.Password = o.Password
	}
	if o.Username != "" {
		spec.Username = o.Username
	}
	if o.EmailVerified != nil {
		spec.EmailVerified = *o.EmailVerified
	}
	if o.VerifyEmail != nil {
		spec.VerifyEmail = *o.VerifyEmail
	}
	if o.UserMetadata != nil {
		spec.UserMetadata = o.UserMetadata
	}
	if o.AppMetadata != nil {
		spec.AppMetadata = o.AppMetadata
	}
	return spec
}

// SeededUser is a created user merged with the request that created it, so
// callers keep the generated password.
type SeededUser struct {
	RemoteUser
	Password string `json:"password,omitempty"`
}

// Merge fills fields the provider did not echo back from the request.
func Merge(spec UserSpec, created RemoteUser) SeededUser {
	if created.Email == "" {
		created.Email = spec.Email
	}
	if created.Connection == "" {
		created.Connection = spec.Connection
	}
	if created.Username == "" {
		created.Username = spec.Username
	}
	if created.UserMetadata == nil {
		created.UserMetadata = spec.UserMetadata
	}
	if created.AppMetadata == nil {
		created.AppMetadata = spec.AppMetadata
	}
	return SeededUser{RemoteUser: created, Password: spec.Password}
}

// LocalRecord is the mirrored row kept in the local store.
type LocalRecord struct {
	UserID        string    `db:"user_id"`
	Email         *string   `db:"email"`
	EmailVerified bool      `db:"email_verified"`
	Connection    *string   `db:"connection"`
	UserMetadata  []byte    `db:"user_metadata"`
	AppMetadata   []byte    `db:"app_metadata"`
	SyncedAt      time.Time `db:"synced_at"`
}
