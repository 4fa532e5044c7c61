package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
)

const contextTokenKey = "adminToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	IsAdmin bool `json:"is_admin,omitempty"`
}

// RegistrationGrant is the short-lived token handed to the registration
// flow after a successful code consumption; it carries the resolved role
// and, for parents, the bound student.
type RegistrationGrant struct {
	jwt.StandardClaims
	Role           string `json:"role"`
	BoundStudentID string `json:"bound_student_id,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// NewAdminClaims mints the claims for an administrative caller.
// The admin CLI and tests use this with GenerateToken.
func NewAdminClaims(conf *core.Config, subject string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		IsAdmin: true,
	}
}

func GenerateToken(conf *core.Config, claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(conf.SecretKey))
}

func newRegistrationGrant(conf *core.Config, c access.Code, registeredBy string) (string, error) {
	now := time.Now()
	grant := &RegistrationGrant{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   registeredBy,
			ExpiresAt: now.Add(conf.Server.RegistrationGrantDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:           string(c.Role),
		BoundStudentID: c.BoundStudentID,
	}
	return GenerateToken(conf, grant)
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return claims, nil
		}
	}
	return nil, errUnauthorized
}

// adminMiddleware only allows callers whose claims carry the admin flag.
func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if !claims.IsAdmin {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
