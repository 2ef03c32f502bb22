package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
)

const resourcePrincipal = "principal"

type authApi struct {
	svc        *principal.Service
	aud        *audit.Emitter
	conf       *core.Config
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := authApi{
		svc:        opts.PrincipalSvc,
		aud:        opts.Audit,
		conf:       opts.Conf,
		validate:   opts.Validate,
		translator: opts.Translator,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)

	// authed endpoints
	tg := ag.Group("", jwt)
	tg.POST("/token-refresh", api.refreshToken)
	tg.POST("/logout", api.logout)

	// account administration
	pg := g.Group("/principals", jwt, sessionMiddleware())
	pg.POST("", api.create, requirePermission(resourcePrincipal, authz.ActionWrite))
	pg.GET("/:id", api.retrieve, requirePermission(resourcePrincipal, authz.ActionRead))
	pg.POST("/:id/deactivate", api.deactivate, requirePermission(resourcePrincipal, authz.ActionManage))
	pg.POST("/:id/unlock", api.unlock, requirePermission(resourcePrincipal, authz.ActionManage))
	pg.POST("/:id/grants", api.grantRole, requirePermission(resourcePrincipal, authz.ActionAssign))
	pg.DELETE("/:id/grants/:gid", api.revokeRole, requirePermission(resourcePrincipal, authz.ActionAssign))
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case principal.ErrInvalidCredentials:
			// carries the remaining-attempts message when applicable
			return core.NewValidationError(errors.New(err.Error()))
		case principal.ErrAccountDisabled, principal.ErrAccountLocked, principal.ErrProfileMissing:
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(GetSessionClaims(sess, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// logout is audit-only: tokens are stateless and expire on their own.
func (api *authApi) logout(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	_ = api.aud.Record(ctx.Request().Context(), audit.EventLogout, sess.SchoolID, sess.UserID, nil)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "logged out"})
}

func (api *authApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}

	var data principal.NewPrincipal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPrincipal")
	}
	// the caller's tenant wins over whatever the payload claims
	if !sess.IsPlatform() {
		data.SchoolID = sess.SchoolID
	}
	if err := data.Validate(api.validate, api.translator, api.svc); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating principal")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *authApi) retrieve(ctx echo.Context) error {
	p, err := api.scopedPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *authApi) deactivate(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	p, err := api.scopedPrincipal(ctx)
	if err != nil {
		return err
	}
	if p.ID == sess.UserID {
		return errHttpForbidden // cannot deactivate oneself
	}

	p, err = api.svc.Deactivate(ctx.Request().Context(), p.ID, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "deactivating principal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *authApi) unlock(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	p, err := api.scopedPrincipal(ctx)
	if err != nil {
		return err
	}

	p, err = api.svc.Unlock(ctx.Request().Context(), p.ID, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "unlocking principal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *authApi) grantRole(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	p, err := api.scopedPrincipal(ctx)
	if err != nil {
		return err
	}

	var grant authz.Grant
	if err := ctx.Bind(&grant); err != nil {
		return errors.Wrap(err, "binding to Grant")
	}
	// the caller cannot hand out a role broader than their own reach
	if grant.Role.Scope == authz.RoleScopePlatform && !sess.IsPlatform() {
		return errHttpForbidden
	}
	if grant.Role.Priority > sess.MaxRolePriority() {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "not enough rights to grant this role"})
	}

	grant, err = api.svc.GrantRole(ctx.Request().Context(), p.ID, sess.UserID, grant)
	if err != nil {
		return errors.Wrap(err, "granting role")
	}
	return ctx.JSON(http.StatusCreated, grant)
}

func (api *authApi) revokeRole(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	p, err := api.scopedPrincipal(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.RevokeRole(ctx.Request().Context(), p.ID, ctx.Param("gid"), sess.UserID); err != nil {
		if errors.Cause(err) == principal.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "revoking role")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// scopedPrincipal loads the addressed principal and hides foreign-tenant
// accounts behind a not-found, unless the caller is platform-wide.
func (api *authApi) scopedPrincipal(ctx echo.Context) (principal.Principal, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return principal.Principal{}, err
	}

	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == principal.ErrNotFound {
			return principal.Principal{}, errHttpNotFound
		}
		return principal.Principal{}, errors.Wrap(err, "finding principal by ID")
	}
	if p.SchoolID != sess.SchoolID && !sess.IsPlatform() {
		return principal.Principal{}, errHttpNotFound
	}
	return p, nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
