package auth

import (
	"context"
	"net/http"
	"strings"

	"quizforge/internal/quiz"
)

const SessionCookie = "__session"

// UserResolver maps a verified external id to a local user.
type UserResolver interface {
	ResolveUser(ctx context.Context, externalID string) (quiz.User, error)
}

// Gate authorizes requests. It never creates users: a valid credential for
// an identity that has not been synced yet yields quiz.ErrUserNotFound.
type Gate struct {
	verifier CredentialVerifier
	users    UserResolver
}

func NewGate(verifier CredentialVerifier, users UserResolver) *Gate {
	return &Gate{verifier: verifier, users: users}
}

// Authenticate returns the external id carried by the request credential.
func (g *Gate) Authenticate(r *http.Request) (string, error) {
	token := credentialFromRequest(r)
	if token == "" || g.verifier == nil {
		return "", ErrUnauthorized
	}
	return g.verifier.Verify(r.Context(), token)
}

func (g *Gate) Resolve(r *http.Request) (quiz.User, error) {
	externalID, err := g.Authenticate(r)
	if err != nil {
		return quiz.User{}, err
	}
	return g.users.ResolveUser(r.Context(), externalID)
}

// credentialFromRequest prefers the Authorization header. The session cookie
// is only honoured on safe methods, so a cross-site form post cannot ride on
// it to submit or delete a quiz.
func credentialFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if !isSafeMethod(r.Method) {
		return ""
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
