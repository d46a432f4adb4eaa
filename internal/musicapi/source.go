package musicapi

import (
	"context"
	"sync"
)

// CredentialSource yields the bearer credential for outbound requests and
// reacts when the upstream rejects it. The executor calls Invalidate once on
// a 401/403 and then asks for a fresh credential.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
	Invalidate()
}

// AppSource exposes the broker's shared app credential as a CredentialSource.
func (b *TokenBroker) AppSource() CredentialSource {
	return &appSource{broker: b}
}

type appSource struct {
	broker *TokenBroker
}

func (s *appSource) Credential(ctx context.Context) (Credential, error) {
	return s.broker.AppCredential(ctx)
}

func (s *appSource) Invalidate() {
	s.broker.InvalidateApp()
}

// UserSource wraps a caller-supplied refresh token. The minted access
// credential lives only as long as the source, scoped to one session.
func (b *TokenBroker) UserSource(refreshToken string) CredentialSource {
	return &userSource{broker: b, refreshToken: refreshToken}
}

type userSource struct {
	broker       *TokenBroker
	refreshToken string

	mu   sync.Mutex
	cred Credential
}

func (s *userSource) Credential(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred.Valid(s.broker.now()) {
		return s.cred, nil
	}
	cred, err := s.broker.RefreshUserCredential(ctx, s.refreshToken)
	if err != nil {
		return Credential{}, err
	}
	s.cred = cred
	return cred, nil
}

func (s *userSource) Invalidate() {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()
}
