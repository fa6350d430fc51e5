// Package admin implements the Admin HTTP Surface (J) of §4.8: the
// management-port endpoints remote plan/migrate tooling and the dev
// loop's own tooling calls against a running instance.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/foundrycore/foundry/pkg/config"
)

// TokenAuth authenticates bearer tokens against the three sources
// §4.8 names, in priority order: an explicit override (--token or
// MOOSE_ADMIN_TOKEN, already plaintext at this layer so compared in
// constant time) beats the project-config token, which is stored and
// compared as a bcrypt hash since it lives on disk.
type TokenAuth struct {
	configHash string
	override   string
}

// NewTokenAuth builds a TokenAuth from project config. override, when
// non-empty, is MOOSE_ADMIN_TOKEN or a --token flag value resolved by
// the caller; pass "" to rely on project config alone.
func NewTokenAuth(cfg *config.ProjectConfig, override string) *TokenAuth {
	return &TokenAuth{configHash: cfg.AdminToken, override: override}
}

// HashToken bcrypt-hashes a plaintext admin token for storage in
// project config (config.ProjectConfig.AdminToken).
func HashToken(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate reports whether presented is a valid admin token. With
// neither an override nor a configured hash, the surface has no
// authentication configured and refuses every request rather than
// defaulting open.
func (a *TokenAuth) Authenticate(presented string) bool {
	if presented == "" {
		return false
	}
	if a.override != "" {
		return subtle.ConstantTimeCompare([]byte(presented), []byte(a.override)) == 1
	}
	if a.configHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.configHash), []byte(presented)) == nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// Middleware rejects any request that doesn't carry a valid bearer
// token before it reaches the wrapped handler.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticate(bearerToken(r)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
