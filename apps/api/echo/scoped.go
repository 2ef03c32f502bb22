package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/academics"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/tenant"
)

// scopedResources maps URL paths to the entity kinds reachable through the
// tenant guard, and the resource tag permissions are checked against.
var scopedResources = []struct {
	path     string
	resource string
	kind     tenant.Kind
}{
	{"students", "student", tenant.KindStudent},
	{"teachers", "teacher", tenant.KindTeacher},
	{"parents", "parent", tenant.KindParent},
	{"school-admins", "school_admin", tenant.KindSchoolAdmin},
	{"classes", "class", tenant.KindClass},
	{"clubs", "club", tenant.KindClub},
	{"homework-completions", "homework_completion", tenant.KindHomeworkCompletion},
}

type scopedApi struct {
	opts *Options
}

// registerScopedAPI exposes CRUD over the scoped entities. Every handler
// goes through the request guard, so nothing here can read or write outside
// the session tenant regardless of what the request claims.
func registerScopedAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := scopedApi{opts: opts}

	for _, res := range scopedResources {
		rg := g.Group("/"+res.path, jwt, sessionMiddleware(), guardMiddleware(opts))
		rg.GET("", api.list(res.kind), requirePermission(res.resource, authz.ActionRead))
		rg.POST("", api.create(res.kind), requirePermission(res.resource, authz.ActionWrite))
		rg.GET("/:id", api.retrieve(res.resource, res.kind))
		rg.PUT("/:id", api.update(res.kind), requirePermission(res.resource, authz.ActionWrite))
		rg.DELETE("/:id", api.destroy(res.kind), requirePermission(res.resource, authz.ActionDelete))
	}
}

func (api *scopedApi) list(kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}

		// arbitrary field filters; the guard overrides any tenant predicate
		filter := make(tenant.Filter)
		for key, vals := range ctx.QueryParams() {
			if len(vals) > 0 && vals[0] != "" {
				filter[key] = vals[0]
			}
		}

		entities, err := guard.ScopedFind(ctx.Request().Context(), kind, filter)
		if err != nil {
			return errors.Wrapf(err, "listing %s", kind)
		}
		if entities == nil {
			entities = []tenant.Entity{}
		}
		return ctx.JSON(http.StatusOK, entities)
	}
}

func (api *scopedApi) create(kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}

		entity, ok := academics.New(kind)
		if !ok {
			return tenant.ErrUnknownKind
		}
		if err := ctx.Bind(entity); err != nil {
			return errors.Wrapf(err, "binding to %s", kind)
		}

		created, err := guard.ScopedCreate(ctx.Request().Context(), kind, entity)
		if err != nil {
			return errors.Wrapf(err, "creating %s", kind)
		}
		return ctx.JSON(http.StatusCreated, created)
	}
}

func (api *scopedApi) retrieve(resource string, kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := getContextSession(ctx)
		if err != nil {
			return err
		}
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}

		entity, err := guard.ScopedGet(ctx.Request().Context(), kind, ctx.Param("id"))
		if err != nil {
			return errors.Wrapf(err, "getting %s", kind)
		}
		// target-aware check so narrowed roles only reach what they cover
		if err := authz.Require(sess, resource, authz.ActionRead, "", entityTarget(entity)); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, entity)
	}
}

func (api *scopedApi) update(kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}

		entity, ok := academics.New(kind)
		if !ok {
			return tenant.ErrUnknownKind
		}
		if err := ctx.Bind(entity); err != nil {
			return errors.Wrapf(err, "binding to %s", kind)
		}
		entity.SetID(ctx.Param("id")) // the path wins over the payload

		updated, err := guard.ScopedUpdate(ctx.Request().Context(), kind, entity)
		if err != nil {
			return errors.Wrapf(err, "updating %s", kind)
		}
		return ctx.JSON(http.StatusOK, updated)
	}
}

func (api *scopedApi) destroy(kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}
		if err := guard.ScopedDelete(ctx.Request().Context(), kind, ctx.Param("id")); err != nil {
			return errors.Wrapf(err, "deleting %s", kind)
		}
		return ctx.NoContent(http.StatusNoContent)
	}
}

// entityTarget derives the authorization target from a loaded entity, so
// class, year-group and student narrowing can apply to it.
func entityTarget(e tenant.Entity) *authz.Target {
	switch v := e.(type) {
	case *academics.Student:
		return &authz.Target{StudentID: v.ID, ClassID: v.ClassID, YearGroup: v.YearGroup}
	case *academics.Class:
		return &authz.Target{ClassID: v.ID, YearGroup: v.YearGroup}
	case *academics.HomeworkCompletion:
		return &authz.Target{StudentID: v.StudentID, ClassID: v.ClassID, Subject: v.Subject}
	}
	return nil
}
