package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/scy"
)

// authenticator resolves the bearer token attached to outgoing requests. A
// static token wins; otherwise the token is revealed from the configured scy
// resource once and cached for the client's lifetime.
type authenticator struct {
	staticToken string
	secretURL   string
	secretKey   string

	once     sync.Once
	resolved string
	err      error
}

func (a *authenticator) token(ctx context.Context) (string, error) {
	if a.staticToken != "" {
		return a.staticToken, nil
	}
	if a.secretURL == "" {
		return "", nil
	}
	a.once.Do(func() {
		resource := scy.NewResource(nil, a.secretURL, a.secretKey)
		secret, err := scy.New().Load(ctx, resource)
		if err != nil {
			a.err = fmt.Errorf("failed to load API token from %s: %w", a.secretURL, err)
			return
		}
		a.resolved = secret.String()
	})
	return a.resolved, a.err
}
