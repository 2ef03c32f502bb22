package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
)

const (
	jwtContextKey     = "principalToken"
	contextSessionKey = "session"
)

// jwtConfig is the JWT auth middleware config.
func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
// The session context (tenant, user type, grants) travels inside the token
// and is re-derived on every refresh, so a revoked grant lives on only
// until the token refreshes or expires.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64         `json:"oriat,omitempty"`
	SchoolID     string        `json:"school_id,omitempty"`
	UserType     string        `json:"user_type,omitempty"`
	Grants       []authz.Grant `json:"grants,omitempty"`
}

// GetSessionClaims builds token claims from a resolved session context.
func GetSessionClaims(sess authz.SessionContext, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   sess.UserID,
			Audience:  sess.SchoolID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		SchoolID:     sess.SchoolID,
		UserType:     sess.UserType,
		Grants:       sess.Grants,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

// getContextClaims returns the verified claims of the current request.
// A token missing either the subject or the tenant claim is rejected: no
// request proceeds without an unambiguous (user, school) pair.
func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			if claims.Subject == "" || claims.SchoolID == "" {
				return Claims{}, errUnauthorized
			}
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func sessionFromClaims(claims Claims) authz.SessionContext {
	return authz.SessionContext{
		UserID:   claims.Subject,
		SchoolID: claims.SchoolID,
		UserType: claims.UserType,
		Grants:   claims.Grants,
	}
}

// getContextSession returns the session context cached on the request.
func getContextSession(ctx echo.Context) (authz.SessionContext, error) {
	if sess, ok := ctx.Get(contextSessionKey).(authz.SessionContext); ok {
		return sess, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return authz.SessionContext{}, err
	}
	sess := sessionFromClaims(claims)
	ctx.Set(contextSessionKey, sess)
	return sess, nil
}

func refreshToken(ctx echo.Context, svc *principal.Service, conf *core.Config) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	p, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == principal.ErrNotFound {
			return "", errUnauthorized
		}
		return "", errors.Wrap(err, "finding principal by ID")
	}

	// check if the account is still usable
	if !p.IsActive {
		return "", errAccountDeactivated
	}
	if p.Locked(time.Now()) {
		return "", errAccountLocked
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	// re-derive the session so revoked grants drop out of the new token
	sess, err := svc.Resolve(ctx.Request().Context(), p)
	if err != nil {
		return "", err
	}

	newClaims := GetSessionClaims(sess, conf, claims.OrigIssuedAt)
	token, err := GenerateToken(newClaims, conf)
	return token, errors.Wrap(err, "generating token")
}
