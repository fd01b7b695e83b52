// Package dbauth generates short-lived database passwords from cloud API
// credentials.
//
// A Client requests an encrypted auth token from the issuance service,
// decrypts it locally, caches the password and keeps it fresh in the
// background. When the service is unavailable the Client serves the cached
// password while it is valid, then a locally provisioned fallback password.
// Errors that need operator action, such as a disabled account or invalid
// credentials, are never masked.
//
// # Example
//
//	client, err := dbauth.NewClient()
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	req, err := dbauth.NewGenerateAuthenticationTokenRequest(
//	    "ap-guangzhou", "cdb-123456", "camtest",
//	    &dbauth.Credential{SecretID: id, SecretKey: key},
//	)
//	if err != nil {
//	    return err
//	}
//	password, err := client.GenerateAuthenticationToken(ctx, req)
//
// # Fallback Passwords
//
// By default a password is read from dbauth/<region>_<instance>_<user>.pwd in
// the working directory when issuance fails with a retryable error. The file
// must hold a single non-empty line of at most 200 bytes. The OS keyring can
// be used instead, see storage.FallbackConfig.
package dbauth

import (
	"github.com/CliForge/dbauth/pkg/dbauth/errcode"
	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// Request describes the token to generate.
type Request = types.Request

// Credential is the cloud API key pair that signs issuance requests.
type Credential = types.Credential

// ClientProfile overrides how the issuance service is reached.
type ClientProfile = types.ClientProfile

// RequestOption customizes a Request.
type RequestOption = types.RequestOption

// Token is a password with its expiry.
type Token = types.Token

// Error is the classified error returned by the client.
type Error = errcode.Error

// NewGenerateAuthenticationTokenRequest validates its arguments and returns a
// request.
func NewGenerateAuthenticationTokenRequest(region, instanceID, userName string, credential *Credential, opts ...RequestOption) (*Request, error) {
	return types.NewGenerateAuthenticationTokenRequest(region, instanceID, userName, credential, opts...)
}

// WithClientProfile sets the client profile of a request.
func WithClientProfile(profile *ClientProfile) RequestOption {
	return types.WithClientProfile(profile)
}

// RequiresUserNotification reports whether err needs operator action rather
// than a retry.
func RequiresUserNotification(err error) bool {
	return errcode.RequiresUserNotification(err)
}
