package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core/identifier"
)

type identifierApi struct {
	svc        *identifier.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerIdentifierAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := identifierApi{
		svc:        deps.IdentifierSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	// all identifier configuration endpoints are admin-only
	ig := g.Group("/id-configs", jwt, adminMiddleware())
	ig.GET("", api.query)
	ig.POST("", api.create)

	dg := ig.Group("/:idType")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.GET("/preview", api.preview)
	dg.POST("/generate", api.generate)
	dg.POST("/reset-counter", api.resetCounter)
}

// Handlers

func (api *identifierApi) query(ctx echo.Context) error {
	configs, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying identifier configs")
	}
	if configs == nil {
		configs = []identifier.Config{}
	}
	return ctx.JSON(http.StatusOK, configs)
}

func (api *identifierApi) create(ctx echo.Context) error {
	var data identifier.NewConfig
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConfig")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cfg, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating identifier config")
	}
	return ctx.JSON(http.StatusCreated, cfg)
}

func (api *identifierApi) retrieve(ctx echo.Context) error {
	cfg, err := api.svc.GetByType(ctx.Request().Context(), ctx.Param("idType"))
	if err != nil {
		return errors.Wrap(err, "finding identifier config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *identifierApi) update(ctx echo.Context) error {
	var data identifier.UpdateConfig
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateConfig")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cfg, err := api.svc.Update(ctx.Request().Context(), ctx.Param("idType"), data)
	if err != nil {
		return errors.Wrap(err, "updating identifier config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *identifierApi) preview(ctx echo.Context) error {
	var rctx identifier.Context
	if err := ctx.Bind(&rctx); err != nil {
		return errors.Wrap(err, "binding to Context")
	}

	id, err := api.svc.Preview(ctx.Request().Context(), ctx.Param("idType"), rctx)
	if err != nil {
		return errors.Wrap(err, "previewing identifier")
	}
	return ctx.JSON(http.StatusOK, IdentifierResponse{ID: id})
}

func (api *identifierApi) generate(ctx echo.Context) error {
	var rctx identifier.Context
	if err := ctx.Bind(&rctx); err != nil {
		return errors.Wrap(err, "binding to Context")
	}

	id, err := api.svc.Generate(ctx.Request().Context(), ctx.Param("idType"), rctx)
	if err != nil {
		return errors.Wrap(err, "generating identifier")
	}
	return ctx.JSON(http.StatusOK, IdentifierResponse{ID: id})
}

func (api *identifierApi) resetCounter(ctx echo.Context) error {
	var data ResetCounterRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetCounterRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cfg, err := api.svc.ResetCounter(ctx.Request().Context(), ctx.Param("idType"), data.Value)
	if err != nil {
		return errors.Wrap(err, "resetting counter")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

type (
	IdentifierResponse struct {
		ID string `json:"id"`
	}

	ResetCounterRequest struct {
		Value int `json:"value" validate:"gte=0"`
	}
)

func (rr *ResetCounterRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(rr)
}
