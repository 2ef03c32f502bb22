package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/tenant"
)

const contextGuardKey = "guard"

// sessionMiddleware materializes the session context from the verified
// token claims once per request, and echoes it back in informational
// response headers. The token stays authoritative.
func sessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}
			h := ctx.Response().Header()
			h.Set("X-School-ID", sess.SchoolID)
			h.Set("X-User-ID", sess.UserID)
			h.Set("X-User-Type", sess.UserType)
			return next(ctx)
		}
	}
}

// requirePermission gates a route on an untargeted capability check.
// Handlers needing a target-aware check perform it themselves.
func requirePermission(resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if err := authz.Require(sess, resource, action, "", nil); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// platformMiddleware restricts a route to platform-wide roles.
func platformMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if !sess.IsPlatform() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// guardMiddleware builds the request-scoped tenant guard from the session.
func guardMiddleware(opts *Options) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			guard, err := tenant.NewGuard(opts.Store, sess.SchoolID, sess.UserID, opts.Audit, opts.Logger)
			if err != nil {
				return errors.Wrap(err, "building tenant guard")
			}
			ctx.Set(contextGuardKey, guard)
			return next(ctx)
		}
	}
}

func getContextGuard(ctx echo.Context) (*tenant.Guard, error) {
	if guard, ok := ctx.Get(contextGuardKey).(*tenant.Guard); ok {
		return guard, nil
	}
	return nil, errUnauthorized
}
