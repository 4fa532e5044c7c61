package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core/student"
)

type studentApi struct {
	svc        *student.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := studentApi{
		svc:        deps.StudentSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	sg := g.Group("/students", jwt, adminMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/parent-mappings", api.createMapping)
	sg.DELETE("/:id/parent-mappings", api.deactivateMapping)
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) createMapping(ctx echo.Context) error {
	var data student.NewMapping
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMapping")
	}
	data.ChildID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.CreateMapping(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating parent mapping")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *studentApi) deactivateMapping(ctx echo.Context) error {
	var data DeactivateMappingRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeactivateMappingRequest")
	}

	if err := api.svc.DeactivateMapping(ctx.Request().Context(), ctx.Param("id"), data.ParentEmail); err != nil {
		return errors.Wrap(err, "deactivating parent mapping")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type DeactivateMappingRequest struct {
	// empty ParentEmail deactivates every mapping for the child
	ParentEmail string `query:"parent_email"`
}
