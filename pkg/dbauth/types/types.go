// Package types defines common types used across the dbauth packages.
package types

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/CliForge/dbauth/pkg/dbauth/errcode"
)

const (
	// Delimiter joins identity fields in keys, file names and key seeds.
	Delimiter = "_"
	// RefreshInterval is the longest time between two refresh attempts.
	RefreshInterval = 5 * time.Second
	// MaxDelay is the longest delay the timer manager accepts. Fallback
	// tokens are valid for this long.
	MaxDelay = 24 * time.Hour
	// MaxPasswordSize is the largest fallback password file accepted, in bytes.
	MaxPasswordSize = 200
)

// Token is an issued database password with its expiry. The zero Token is
// the absent token.
type Token struct {
	secret    string
	expiresAt time.Time
}

// NewToken returns a token holding secret until expiresAt.
func NewToken(secret string, expiresAt time.Time) Token {
	return Token{secret: secret, expiresAt: expiresAt}
}

// Secret returns the plaintext password.
func (t Token) Secret() string {
	return t.secret
}

// ExpiresAt returns when the token stops being valid.
func (t Token) ExpiresAt() time.Time {
	return t.expiresAt
}

// IsZero reports whether t is the absent token.
func (t Token) IsZero() bool {
	return t.secret == "" && t.expiresAt.IsZero()
}

// IsValidAt returns true if the token holds a secret that has not expired at now.
func (t Token) IsValidAt(now time.Time) bool {
	return t.secret != "" && t.expiresAt.After(now)
}

// Credential is the cloud API key pair used to sign issuance requests.
type Credential struct {
	// SecretID identifies the API key.
	SecretID string `yaml:"secret_id" json:"secret_id"`
	// SecretKey signs requests.
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	// Token is an optional session token for temporary credentials.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
}

// ClientProfile overrides how the issuance service is reached for a request.
type ClientProfile struct {
	// Endpoint is the issuance service host or URL.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// Timeout bounds a single issuance HTTP request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Identity names the database account a token is issued for.
type Identity struct {
	Region     string
	InstanceID string
	UserName   string
}

// FileName returns the fallback password file name for the identity.
func (i Identity) FileName() string {
	return i.Region + Delimiter + i.InstanceID + Delimiter + i.UserName + ".pwd"
}

// Account returns the identity fields joined by Delimiter.
func (i Identity) Account() string {
	return i.Region + Delimiter + i.InstanceID + Delimiter + i.UserName
}

// Request describes the token to generate.
type Request struct {
	Region        string
	InstanceID    string
	UserName      string
	Credential    *Credential
	ClientProfile *ClientProfile
}

// RequestOption customizes a Request.
type RequestOption func(*Request)

// WithClientProfile sets the client profile used to reach the issuer.
func WithClientProfile(profile *ClientProfile) RequestOption {
	return func(r *Request) {
		r.ClientProfile = profile
	}
}

// NewGenerateAuthenticationTokenRequest validates its arguments and returns a
// request. Validation failures are *errcode.Error values.
func NewGenerateAuthenticationTokenRequest(region, instanceID, userName string, credential *Credential, opts ...RequestOption) (*Request, error) {
	req := &Request{
		Region:     region,
		InstanceID: instanceID,
		UserName:   userName,
		Credential: credential,
	}
	for _, opt := range opts {
		opt(req)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks the request names an account and carries a usable
// credential.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Region) == "" {
		return errcode.New(errcode.InvalidRegion, "The region is invalid.")
	}
	if strings.TrimSpace(r.InstanceID) == "" {
		return errcode.New(errcode.InvalidResource, "The instanceId is invalid.")
	}
	if strings.TrimSpace(r.UserName) == "" {
		return errcode.New(errcode.InvalidUserName, "The userName is invalid.")
	}
	if r.Credential == nil || r.Credential.SecretID == "" || r.Credential.SecretKey == "" {
		return errcode.New(errcode.SecretNotExist, "The credential is invalid.")
	}
	return nil
}

// Identity returns the database account the request targets.
func (r *Request) Identity() Identity {
	return Identity{Region: r.Region, InstanceID: r.InstanceID, UserName: r.UserName}
}

// Key returns the identity key of the request: region, instance, user and
// secret id joined by Delimiter, base64 encoded. It is the cache and timer key.
func (r *Request) Key() string {
	var secretID string
	if r.Credential != nil {
		secretID = r.Credential.SecretID
	}
	raw := r.Region + Delimiter + r.InstanceID + Delimiter + r.UserName + Delimiter + secretID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
