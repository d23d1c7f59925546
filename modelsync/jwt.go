package modelsync

import (
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

type SessionJwt struct {
	UserId    int64
	Username  string
	Locale    string
	ExpiresAt time.Time
}

// the session token is verified by the server. The client only reads claims
// to tag logs and to default the locale.
func ParseSessionJwtUnverified(jwt string) (*SessionJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	sessionJwt := &SessionJwt{}

	switch v := claims["user_id"].(type) {
	case float64:
		sessionJwt.UserId = int64(v)
	}
	if username, ok := claims["username"].(string); ok {
		sessionJwt.Username = username
	}
	if locale, ok := claims["locale"].(string); ok {
		sessionJwt.Locale = locale
	}
	if expiresAt, err := claims.GetExpirationTime(); err == nil && expiresAt != nil {
		sessionJwt.ExpiresAt = expiresAt.Time
	}

	return sessionJwt, nil
}

func (self *SessionJwt) Expired(now time.Time) bool {
	return !self.ExpiresAt.IsZero() && !now.Before(self.ExpiresAt)
}
