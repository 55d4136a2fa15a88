package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/roundy-world/lesson-server/internal/infrastructure/auth"
	"github.com/roundy-world/lesson-server/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ValidateTokenOption ...
type ValidateTokenOption struct {
	// InBlackList reports signed out tokens, nil accepts every valid token
	InBlackList func(ctx context.Context, token string) (bool, error)
}

// RefreshTokenOption ...
type RefreshTokenOption struct {
	// Threshold tokens closer than this to expiry are re-issued
	Threshold time.Duration
}

// VerifyToken reject requests without a valid learner token, the claims are
// stored in the echo context and the learner id is bound to the request logger
func VerifyToken(ju *auth.JWTUtil, options ...*ValidateTokenOption) echo.MiddlewareFunc {
	var inBlacklist func(context.Context, string) (bool, error)
	if len(options) > 0 && options[0] != nil {
		inBlacklist = options[0].InBlackList
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := ju.ExtractToken(c)
			if err != nil {
				return c.NoContent(http.StatusUnauthorized)
			}
			if inBlacklist != nil {
				revoked, err := inBlacklist(c.Request().Context(), tokenStr)
				if err != nil {
					return err
				}
				if revoked {
					return c.NoContent(http.StatusUnauthorized)
				}
			}

			claims, err := ju.Parse(tokenStr)
			if err != nil {
				return c.NoContent(http.StatusUnauthorized)
			}
			ju.SetContextToken(c, claims)

			r := c.Request()
			logger := logging.ExtractLoggerFromContext(r.Context()).With(zap.String("user.id", claims.UID))
			c.SetRequest(r.WithContext(logging.SetLoggerInContext(r.Context(), logger)))
			return next(c)
		}
	}
}

// RefreshToken re-issue the token cookie when it is about to expire, must be
// chained after VerifyToken
func RefreshToken(ju *auth.JWTUtil, options ...*RefreshTokenOption) echo.MiddlewareFunc {
	threshold := 5 * time.Minute
	if len(options) > 0 && options[0] != nil && options[0].Threshold > 0 {
		threshold = options[0].Threshold
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ju.GetContextToken(c)
			if claims == nil || claims.TimeRemaining() >= threshold {
				return next(c)
			}
			tokenStr, err := ju.Sign(ju.Extend(claims))
			if err != nil {
				return err
			}
			ju.SetClientToken(c, tokenStr)
			return next(c)
		}
	}
}
