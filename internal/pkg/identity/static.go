package identity

import (
	"context"
	"strings"
)

// StaticVerifier accepts a fixed set of tokens. It backs local development
// without Firebase credentials and the HTTP tests.
type StaticVerifier map[string]Identity

func (s StaticVerifier) VerifyIDToken(_ context.Context, idToken string) (*Identity, error) {
	id, ok := s[strings.TrimSpace(idToken)]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &id, nil
}
