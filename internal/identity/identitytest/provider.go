// Package identitytest provides an in-process fake of the identity
// provider's REST API for tests. It stores bcrypt password hashes and
// mints signed id tokens, so sign-in flows can be exercised end to end
// without the real service.
package identitytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// tokenSecret signs the fake provider's id tokens. The tokens are opaque
// to the application, so the value only matters inside this package.
const tokenSecret = "identitytest-secret"

type account struct {
	uid          string
	passwordHash []byte
	disabled     bool
}

// Provider is a fake identity provider listening on a local test server.
type Provider struct {
	Server *httptest.Server

	mu         sync.Mutex
	accounts   map[string]*account // keyed by email
	forcedCode string
}

// NewProvider starts a fake provider. Callers must Close it.
func NewProvider() *Provider {
	p := &Provider{accounts: make(map[string]*account)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signUp", p.handleSignUp)
	mux.HandleFunc("/v1/accounts:signInWithPassword", p.handleSignIn)
	p.Server = httptest.NewServer(mux)
	return p
}

// URL returns the base URL to hand to the gateway under test.
func (p *Provider) URL() string {
	return p.Server.URL
}

// Close shuts the test server down.
func (p *Provider) Close() {
	p.Server.Close()
}

// Seed registers an account directly, bypassing the HTTP surface, and
// returns its UID.
func (p *Provider) Seed(email, password string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	uid := uuid.New().String()
	p.accounts[email] = &account{uid: uid, passwordHash: hash}
	return uid
}

// Disable marks an account as administratively disabled.
func (p *Provider) Disable(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if acct, ok := p.accounts[email]; ok {
		acct.disabled = true
	}
}

// ForceErrorCode makes every subsequent sign-in fail with the given
// provider code. An empty code restores normal behavior.
func (p *Provider) ForceErrorCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.forcedCode = code
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": code},
	})
}

func writeSuccess(w http.ResponseWriter, uid, email, token string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"localId": uid,
		"email":   email,
		"idToken": token,
	})
}

func (p *Provider) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[req.Email]; exists {
		writeError(w, http.StatusBadRequest, "EMAIL_EXISTS")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	uid := uuid.New().String()
	p.accounts[req.Email] = &account{uid: uid, passwordHash: hash}
	writeSuccess(w, uid, req.Email, p.mintToken(uid, req.Email))
}

func (p *Provider) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.forcedCode != "" {
		writeError(w, http.StatusBadRequest, p.forcedCode)
		return
	}

	acct, ok := p.accounts[req.Email]
	if !ok {
		writeError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	}
	if acct.disabled {
		writeError(w, http.StatusBadRequest, "USER_DISABLED")
		return
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
		return
	}
	writeSuccess(w, acct.uid, req.Email, p.mintToken(acct.uid, req.Email))
}

// mintToken issues a short-lived HS256 id token for the account.
func (p *Provider) mintToken(uid, email string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(tokenSecret))
	return signed
}
