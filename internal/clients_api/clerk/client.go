package clerk

// Identity provider backend API: sessions, users and template tokens.
// The user's custodial wallet reference lives in the user's public metadata.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"wave-portal/internal/infra/httpclient"
	"wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"go.uber.org/zap"
)

var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrSessionInactive = errors.New("session is not active")
)

type Session struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	ExpireAt int64  `json:"expire_at"`
}

type User struct {
	ID             string                 `json:"id"`
	Username       string                 `json:"username"`
	FirstName      string                 `json:"first_name"`
	PublicMetadata map[string]interface{} `json:"public_metadata"`
}

// WalletMetadata - custodial wallet fields written during onboarding
type WalletMetadata struct {
	PublicKey           string
	EncryptedPrivateKey string
}

// Wallet returns the wallet reference, false when onboarding has not happened
func (u *User) Wallet() (WalletMetadata, bool) {
	if u == nil || u.PublicMetadata == nil {
		return WalletMetadata{}, false
	}
	pub, _ := u.PublicMetadata["publicKey"].(string)
	enc, _ := u.PublicMetadata["encryptedPrivateKey"].(string)
	if pub == "" || enc == "" {
		return WalletMetadata{}, false
	}
	return WalletMetadata{PublicKey: pub, EncryptedPrivateKey: enc}, true
}

// Identity - verified caller
type Identity struct {
	SessionID string
	User      *User
}

type Options struct {
	BaseURL     string
	SecretKey   string
	JWTTemplate string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
}

type cachedToken struct {
	jwt       string
	expiresAt int64
}

type Client struct {
	http     *httpclient.Client
	template string
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.clerk.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		http: httpclient.New(httpclient.Options{
			Name:       "ClerkAPI",
			BaseURL:    opts.BaseURL,
			Timeout:    opts.Timeout,
			Headers:    map[string]string{"Authorization": "Bearer " + opts.SecretKey},
			HTTPClient: opts.HTTPClient,
		}),
		template: opts.JWTTemplate,
		now:      opts.Now,
		tokens:   make(map[string]cachedToken),
	}
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := c.http.DoJSON(ctx, httpclient.Request{Endpoint: "/v1/sessions/" + url.PathEscape(sessionID)}, &s); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", notFoundAsUnauthenticated(err))
	}
	return &s, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.http.DoJSON(ctx, httpclient.Request{Endpoint: "/v1/users/" + url.PathEscape(userID)}, &u); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", notFoundAsUnauthenticated(err))
	}
	return &u, nil
}

// Authenticate resolves a session JWT to an active session and its user
func (c *Client) Authenticate(ctx context.Context, sessionJWT string) (*Identity, error) {
	if sessionJWT == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := ParseClaims(sessionJWT)
	if err != nil || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	if claims.ExpiresAt != 0 && claims.ExpiresAt < c.now().Unix() {
		return nil, ErrUnauthenticated
	}

	session, err := c.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != "active" || session.UserID != claims.Subject {
		log.LogWarn("Rejected session",
			zap.String("sessionID", session.ID),
			zap.String("status", session.Status))
		return nil, ErrSessionInactive
	}

	user, err := c.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return &Identity{SessionID: session.ID, User: user}, nil
}

// BearerToken - template token for the session, cached until shortly before exp
func (c *Client) BearerToken(ctx context.Context, sessionID string) (string, error) {
	key := sessionID + "/" + c.template

	c.mu.Lock()
	if t, ok := c.tokens[key]; ok && t.expiresAt-10 > c.now().Unix() {
		c.mu.Unlock()
		return t.jwt, nil
	}
	c.mu.Unlock()

	var resp struct {
		JWT string `json:"jwt"`
	}
	endpoint := fmt.Sprintf("/v1/sessions/%s/tokens/%s", url.PathEscape(sessionID), url.PathEscape(c.template))
	if err := c.http.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Endpoint: endpoint}, &resp); err != nil {
		return "", fmt.Errorf("failed to get %s token: %w", c.template, notFoundAsUnauthenticated(err))
	}
	if resp.JWT == "" {
		return "", fmt.Errorf("empty %s token", c.template)
	}

	expiresAt, err := GetTokenExpirationTime(resp.JWT)
	if err != nil {
		// unknown lifetime, do not cache
		return resp.JWT, nil
	}

	c.mu.Lock()
	c.tokens[key] = cachedToken{jwt: resp.JWT, expiresAt: expiresAt}
	c.mu.Unlock()

	log.LogDebug("Bearer token minted",
		zap.String("template", c.template),
		zap.String("expiresAt", time.Unix(expiresAt, 0).Format(time.RFC3339)))
	return resp.JWT, nil
}

func notFoundAsUnauthenticated(err error) error {
	var he *retry.HTTPError
	if errors.As(err, &he) && (he.StatusCode == http.StatusNotFound || he.StatusCode == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return err
}
