// Package issuer talks to the credential issuance service.
package issuer

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/issuer_mock.go github.com/CliForge/dbauth/pkg/dbauth/issuer Issuer

import (
	"context"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// Response is the issued, still encrypted, auth token.
type Response struct {
	// Token is the encrypted auth token.
	Token string
	// CurrentTime is the issuer clock when the token was issued, in
	// milliseconds.
	CurrentTime int64
	// NextRotationTime is when the issuer rotates the token, in milliseconds
	// on the issuer clock.
	NextRotationTime int64
	// RequestID identifies the issuance request.
	RequestID string
}

// Issuer requests auth tokens for database accounts.
type Issuer interface {
	// BuildDataFlowAuthToken requests an auth token for req. Service
	// failures are returned as *errcode.Error values.
	BuildDataFlowAuthToken(ctx context.Context, req *types.Request) (*Response, error)
}
