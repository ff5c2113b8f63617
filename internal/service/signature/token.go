package signature

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	jwtGrantType   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	jwtGrantScopes = "signature impersonation"
	jwtAssertionTTL = time.Hour

	// Refresh slightly early so an in-flight call never carries a token
	// that expires mid-request.
	tokenExpirySlack = time.Minute
)

// tokenSource exchanges a signed JWT assertion for a provider access
// token and caches it until shortly before expiry. All credential
// state lives here; callers only ever see the bearer token string.
type tokenSource struct {
	http       *resty.Client
	authServer string
	clientID   string
	userID     string
	privateKey *rsa.PrivateKey

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func newTokenSource(http *resty.Client, authServer, clientID, userID, privateKeyFile string) (*tokenSource, error) {
	keyPEM, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read signature private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse signature private key: %w", err)
	}

	return &tokenSource{
		http:       http,
		authServer: authServer,
		clientID:   clientID,
		userID:     userID,
		privateKey: key,
	}, nil
}

// Token returns a valid access token, refreshing it when needed.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expiresAt.Add(-tokenExpirySlack)) {
		return ts.token, nil
	}

	assertion, err := ts.signAssertion()
	if err != nil {
		return "", err
	}

	var out tokenResponse
	resp, err := ts.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": jwtGrantType,
			"assertion":  assertion,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("https://%s/oauth/token", ts.authServer))
	if err != nil {
		return "", fmt.Errorf("request access token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("request access token: %s: %s", resp.Status(), resp.String())
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	ts.token = out.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return ts.token, nil
}

func (ts *tokenSource) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   ts.clientID,
		"sub":   ts.userID,
		"aud":   ts.authServer,
		"iat":   now.Unix(),
		"exp":   now.Add(jwtAssertionTTL).Unix(),
		"scope": jwtGrantScopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(ts.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign jwt assertion: %w", err)
	}
	return signed, nil
}
