package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/school"
)

const resourceSchool = "school"

type schoolApi struct {
	svc        *school.Service
	validate   *validator.Validate
	translator ut.Translator
}

// registerSchoolAPI exposes tenant lifecycle management. Creating, listing
// and deactivating schools is platform-only; a school-scoped caller can only
// read their own tenant.
func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := schoolApi{
		svc:        opts.SchoolSvc,
		validate:   opts.Validate,
		translator: opts.Translator,
	}

	sg := g.Group("/schools", jwt, sessionMiddleware())
	sg.POST("", api.create, platformMiddleware())
	sg.GET("", api.query, platformMiddleware())
	sg.GET("/:id", api.retrieve, requirePermission(resourceSchool, authz.ActionRead))
	sg.POST("/:id/deactivate", api.deactivate, platformMiddleware())
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == school.ErrIDExists {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	schools, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	// a school-scoped caller can only see their own tenant
	if id != sess.SchoolID && !sess.IsPlatform() {
		return errHttpNotFound
	}

	sch, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) deactivate(ctx echo.Context) error {
	sch, err := api.svc.Deactivate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}
