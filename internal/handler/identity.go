package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
	"github.com/golang-jwt/jwt/v4"
)

// Identity modes accepted by NewIdentityVerifier.
const (
	IdentityGoogle = "google"
	IdentityJWT    = "jwt"
	IdentityHeader = "header"
)

// ErrNoIdentity is returned when a login request carries no usable identity.
var ErrNoIdentity = errors.New("no identity in request")

// IdentityVerifier extracts the verified email from a login request. The
// portal never checks credentials itself.
type IdentityVerifier interface {
	Mode() string
	Email(r *http.Request) (string, error)
}

// IdentityConfig configures the identity verifier.
type IdentityConfig struct {
	Mode           string
	GoogleClientID string
	JWTSecret      string
	Header         string
}

// NewIdentityVerifier creates the verifier for cfg.Mode.
func NewIdentityVerifier(cfg IdentityConfig) (IdentityVerifier, error) {
	switch cfg.Mode {
	case IdentityGoogle:
		if cfg.GoogleClientID == "" {
			return nil, errors.New("google identity mode needs a client ID")
		}
		return googleVerifier{clientID: cfg.GoogleClientID}, nil
	case IdentityJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt identity mode needs a secret")
		}
		return jwtVerifier{secret: []byte(cfg.JWTSecret)}, nil
	case IdentityHeader:
		name := cfg.Header
		if name == "" {
			name = "X-Forwarded-Email"
		}
		return headerVerifier{name: name}, nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}

// googleVerifier checks a Google Identity Services ID token.
type googleVerifier struct {
	clientID string
}

func (g googleVerifier) Mode() string { return IdentityGoogle }

func (g googleVerifier) Email(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.FormValue("credential"))
	if token == "" {
		return "", ErrNoIdentity
	}
	v := googleAuthIDTokenVerifier.Verifier{}
	if err := v.VerifyIDToken(token, []string{g.clientID}); err != nil {
		return "", fmt.Errorf("verify google id token: %w", err)
	}
	claimSet, err := googleAuthIDTokenVerifier.Decode(token)
	if err != nil {
		return "", fmt.Errorf("decode google id token: %w", err)
	}
	if claimSet.Email == "" {
		return "", ErrNoIdentity
	}
	return claimSet.Email, nil
}

// jwtVerifier checks an HS256 token issued by an identity gateway.
type jwtVerifier struct {
	secret []byte
}

func (j jwtVerifier) Mode() string { return IdentityJWT }

func (j jwtVerifier) Email(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.FormValue("token"))
	if raw == "" {
		raw = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if raw == "" {
		return "", ErrNoIdentity
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("invalid identity token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrNoIdentity
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", ErrNoIdentity
	}
	return email, nil
}

// headerVerifier trusts an email header set by an authenticating proxy.
type headerVerifier struct {
	name string
}

func (hv headerVerifier) Mode() string { return IdentityHeader }

func (hv headerVerifier) Email(r *http.Request) (string, error) {
	email := strings.TrimSpace(r.Header.Get(hv.name))
	if email == "" {
		return "", ErrNoIdentity
	}
	return email, nil
}
