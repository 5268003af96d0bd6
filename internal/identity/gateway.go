// Package identity wraps the managed identity provider's REST endpoints:
// account creation and password sign-in. It owns no state; it maps
// request/response pairs and translates provider error codes into
// user-facing messages.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultEndpoint is the provider's Identity Toolkit base URL.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com"

// ErrorKind distinguishes a provider-reported failure from a transport
// failure (unreachable endpoint, timeout, malformed body).
type ErrorKind int

const (
	KindProvider ErrorKind = iota
	KindTransport
)

// Error is a failed identity operation. Code carries the provider's
// error code verbatim when Kind is KindProvider.
type Error struct {
	Kind ErrorKind
	Code string
	err  error
}

func (e *Error) Error() string {
	if e.Kind == KindTransport {
		return fmt.Sprintf("identity provider unreachable: %v", e.err)
	}
	return fmt.Sprintf("identity provider rejected request: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.err
}

// userMessages is the fixed translation table from provider error codes
// to the one-line notices shown to users.
var userMessages = map[string]string{
	"INVALID_LOGIN_CREDENTIALS":   "password incorrect or email invalid",
	"EMAIL_NOT_FOUND":             "email not registered",
	"USER_DISABLED":               "account disabled by administrator",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "too many failed attempts, retry later",
}

// UserMessage returns the user-facing notice for this failure. Unmapped
// provider codes fall back to a generic message.
func (e *Error) UserMessage() string {
	if e.Kind == KindTransport {
		return "connection error, try again later"
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return "could not sign in, check your credentials"
}

// Credentials is the result of a successful password sign-in.
type Credentials struct {
	UID     string
	Email   string
	IDToken string
}

// Gateway is the client for the identity provider's REST API.
type Gateway struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewGateway creates a new Gateway. An empty endpoint selects the
// provider's public one; tests inject a fake server's URL instead.
func NewGateway(apiKey, endpoint string) *Gateway {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Gateway{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

type authRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type authResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// post issues one provider call and splits failures into the transport
// and provider error kinds.
func (g *Gateway) post(ctx context.Context, action, email, password string) (*authResponse, error) {
	body, err := json.Marshal(authRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, &Error{Kind: KindTransport, err: err}
	}

	url := fmt.Sprintf("%s/v1/accounts:%s?key=%s", g.endpoint, action, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, err: err}
	}
	defer resp.Body.Close()

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Kind: KindTransport, err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindProvider, Code: parsed.Error.Message}
	}
	return &parsed, nil
}

// SignUp creates a new account and returns its UID.
func (g *Gateway) SignUp(ctx context.Context, email, password string) (string, error) {
	resp, err := g.post(ctx, "signUp", email, password)
	if err != nil {
		return "", err
	}
	return resp.LocalID, nil
}

// SignIn exchanges an email/password pair for the account's credentials.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	resp, err := g.post(ctx, "signInWithPassword", email, password)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		UID:     resp.LocalID,
		Email:   resp.Email,
		IDToken: resp.IDToken,
	}, nil
}
