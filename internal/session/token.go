package session

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// LinkClaims are the claims carried by a signed link token. The token travels
// through the external provider roundtrip as an opaque query parameter and
// binds the callback to the linking session that started it.
type LinkClaims struct {
	SessionID   string `json:"sid"`
	Fingerprint string `json:"fph"` // hex(sha256(sessionID + fingerprint cookie))
	jwtv5.RegisteredClaims
}

// LinkTokenAudience is the expected audience for link tokens.
const LinkTokenAudience = "idp-link"

// Errors for link token operations.
var (
	ErrLinkTokenInvalid = errors.New("invalid link token")
	ErrLinkTokenExpired = errors.New("link token expired")
)

// TokenSigner firma y valida link tokens con HMAC.
type TokenSigner struct {
	Secret []byte
	TTL    time.Duration
}

// Sign emite un link token para la sesión y fingerprint dados.
func (s *TokenSigner) Sign(sessionID, fingerprint string) (string, error) {
	now := time.Now().UTC()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	claims := LinkClaims{
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Audience:  jwtv5.ClaimStrings{LinkTokenAudience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Parse valida un link token y retorna sus claims.
func (s *TokenSigner) Parse(tokenString string) (*LinkClaims, error) {
	var claims LinkClaims
	tk, err := jwtv5.ParseWithClaims(tokenString, &claims, func(t *jwtv5.Token) (any, error) {
		return s.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithAudience(LinkTokenAudience))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrLinkTokenExpired
		}
		return nil, ErrLinkTokenInvalid
	}
	if !tk.Valid || claims.SessionID == "" {
		return nil, ErrLinkTokenInvalid
	}
	return &claims, nil
}
