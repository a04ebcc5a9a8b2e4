// Package auth gates the operator surface. A single operator account is
// configured with a bcrypt password hash; a successful login returns a
// short-lived HS256 bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleOperator is the only role issued by this package.
const RoleOperator = "operator"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims carried in operator tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Operator verifies credentials and tokens for the operator account.
type Operator struct {
	email        string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewOperator(email, passwordHash, secret string, ttl time.Duration) (*Operator, error) {
	if email == "" || passwordHash == "" || secret == "" {
		return nil, errors.New("operator email, password hash and secret are required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("operator password hash: %w", err)
	}
	return &Operator{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// HashPassword is used by operators to produce LUCKYDRAW_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login checks the credentials and issues a token.
func (o *Operator) Login(email, password string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(o.email)) == 1
	// Always run bcrypt so timing does not reveal whether the email matched.
	passwordOK := bcrypt.CompareHashAndPassword(o.passwordHash, []byte(password)) == nil
	if !emailOK || !passwordOK {
		return "", time.Time{}, ErrInvalidCredentials
	}

	expires := o.now().Add(o.ttl)
	claims := Claims{
		Email: o.email,
		Role:  RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   o.email,
			IssuedAt:  jwt.NewNumericDate(o.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(o.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// Verify parses and validates an operator token.
func (o *Operator) Verify(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return o.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(o.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Role != RoleOperator {
		return nil, ErrInvalidToken
	}
	return c, nil
}
