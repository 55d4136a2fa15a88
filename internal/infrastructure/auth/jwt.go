package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/roundy-world/lesson-server/internal/user"
)

// ErrNoToken request carries neither the token cookie nor a bearer header
var ErrNoToken = errors.New("no token provided")

// ErrInvalidToken token parsed but does not identify a learner of this service
var ErrInvalidToken = errors.New("invalid token")

// LearnerClaims identity carried by a session token, UID keys every progress record
type LearnerClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name"`

	jwt.StandardClaims
}

// TimeRemaining remaining time before the token get expired
func (lc *LearnerClaims) TimeRemaining() time.Duration {
	left := time.Until(time.Unix(lc.ExpiresAt, 0))
	if left < 0 {
		return 0
	}
	return left
}

// JWTOption options of NewJWTUtil
type JWTOption struct {
	Method    string        // HS256 or HS512
	Secret    string        // signing secret
	TokenName string        // cookie and context key
	Issuer    string        // app id, tokens from other issuers are rejected
	Timeout   time.Duration // session lifetime
}

// JWTUtil issues and checks learner session tokens
type JWTUtil struct {
	secret    []byte
	tokenName string
	issuer    string
	timeout   time.Duration
	method    jwt.SigningMethod
}

// NewJWTUtil create a JWTUtil instance
func NewJWTUtil(option *JWTOption) *JWTUtil {
	var method jwt.SigningMethod = jwt.SigningMethodHS256
	if option.Method == "HS512" {
		method = jwt.SigningMethodHS512
	}
	return &JWTUtil{
		method:    method,
		secret:    []byte(option.Secret),
		tokenName: option.TokenName,
		issuer:    option.Issuer,
		timeout:   option.Timeout,
	}
}

// Sign sign claims with the configured method
func (ju *JWTUtil) Sign(claims *LearnerClaims) (string, error) {
	return jwt.NewWithClaims(ju.method, claims).SignedString(ju.secret)
}

// Parse check signature, expiry and issuer of tokenStr
func (ju *JWTUtil) Parse(tokenStr string) (*LearnerClaims, error) {
	claims := new(LearnerClaims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != ju.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return ju.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UID == "" || claims.Issuer != ju.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken sign a fresh session token for u
func (ju *JWTUtil) IssueToken(u *user.UserModel) (string, error) {
	now := time.Now()
	return ju.Sign(&LearnerClaims{
		UID:   u.ID,
		Email: u.Email,
		Name:  u.Username,
		StandardClaims: jwt.StandardClaims{
			Issuer:    ju.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ju.timeout).Unix(),
		},
	})
}

// Extend push token expiration forward by the session timeout
func (ju *JWTUtil) Extend(claims *LearnerClaims) *LearnerClaims {
	claims.ExpiresAt = time.Now().Add(ju.timeout).Unix()
	return claims
}

func (ju *JWTUtil) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     ju.tokenName,
		Value:    value,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
}

// SetClientToken set token in client cookie
func (ju *JWTUtil) SetClientToken(c echo.Context, tokenStr string) {
	c.SetCookie(ju.cookie(tokenStr, time.Now().Add(ju.timeout)))
}

// ClearClientToken clear client cookie
func (ju *JWTUtil) ClearClientToken(c echo.Context) {
	c.SetCookie(ju.cookie("", time.Unix(0, 0)))
}

// SetContextToken set claims in the echo context
func (ju *JWTUtil) SetContextToken(c echo.Context, claims *LearnerClaims) {
	c.Set(ju.tokenName, claims)
}

// GetContextToken claims set by SetContextToken, nil outside authenticated routes
func (ju *JWTUtil) GetContextToken(c echo.Context) *LearnerClaims {
	claims, _ := c.Get(ju.tokenName).(*LearnerClaims)
	return claims
}

// ExtractToken get token string from request, the cookie wins over the
// Authorization header
func (ju *JWTUtil) ExtractToken(c echo.Context) (string, error) {
	if token, err := c.Cookie(ju.tokenName); err == nil && token.Value != "" {
		return token.Value, nil
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:], nil
	}
	return "", ErrNoToken
}
