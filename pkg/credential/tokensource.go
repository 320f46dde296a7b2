package credential

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts a Manager to golang.org/x/oauth2.TokenSource, grounded on
// the teacher's pkg/providers/common/oauth_refresh.go GeminiOAuthRefresh,
// which wraps oauth2.Config.TokenSource the same way. This lets any HTTP
// client built against the oauth2 ecosystem (oauth2.Transport, oauth2.NewClient)
// consume a Manager's access token without depending on pkg/credential directly.
type TokenSource struct {
	ctx     context.Context
	manager *Manager
}

// NewTokenSource wraps manager as an oauth2.TokenSource bound to ctx.
func NewTokenSource(ctx context.Context, manager *Manager) *TokenSource {
	return &TokenSource{ctx: ctx, manager: manager}
}

// Token implements oauth2.TokenSource.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.manager.GetAccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	expiry, err := s.manager.cachedExpiry(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
