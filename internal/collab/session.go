package collab

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vovakirdan/medichat/internal/chat"
)

// sessionClaims mirrors the portal's access-token claims. The token is
// issued and validated by the external auth service; the chat core only
// reads the identity out of it.
type sessionClaims struct {
	Name     string `json:"name"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// UserFromToken decodes the current user's identity from a session token.
// The signature is not verified here — the server re-validates the token on
// every call; the core treats the identity as read-only context.
func UserFromToken(token string) (chat.Participant, error) {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return chat.Participant{}, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return chat.Participant{}, fmt.Errorf("session token has no subject")
	}

	role := chat.Role(claims.UserType)
	if role != chat.RolePatient && role != chat.RoleDoctor {
		return chat.Participant{}, fmt.Errorf("session token has unknown user type %q", claims.UserType)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return chat.Participant{ID: claims.Subject, Name: name, Role: role}, nil
}
