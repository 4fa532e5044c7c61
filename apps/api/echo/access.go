package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
)

type accessApi struct {
	conf       *core.Config
	svc        *access.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerAccessAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := accessApi{
		conf:       deps.Conf,
		svc:        deps.AccessSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	// admin endpoints
	ag := g.Group("/access-codes", jwt, adminMiddleware())
	ag.GET("", api.query)
	ag.POST("", api.issue)
	ag.POST("/bulk", api.issueBulk)
	ag.POST("/revoke", api.revoke)
	ag.POST("/sweep", api.sweep)

	// un-authed endpoints; the registration flow presents a code before any
	// account exists
	rg := g.Group("/register")
	rg.POST("/validate", api.validateCode)
	rg.POST("", api.consume)
}

// Handlers

func (api *accessApi) query(ctx echo.Context) error {
	filter := new(access.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []access.Code{})
	}

	codes, err := api.svc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying access codes")
	}
	if codes == nil {
		codes = []access.Code{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *accessApi) issue(ctx echo.Context) error {
	var data IssueRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IssueRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Issue(ctx.Request().Context(), access.Role(data.Role), access.IssueOptions{
		BoundStudentID: data.BoundStudentID,
		ValidityDays:   data.ValidityDays,
	})
	if err != nil {
		return errors.Wrap(err, "issuing access code")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *accessApi) issueBulk(ctx echo.Context) error {
	var data BulkIssueRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkIssueRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	results := api.svc.IssueForStudents(ctx.Request().Context(), data.StudentIDs)
	return ctx.JSON(http.StatusOK, results)
}

func (api *accessApi) revoke(ctx echo.Context) error {
	var data RevokeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RevokeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Revoke(ctx.Request().Context(), data.Code, data.Reason)
	if err != nil {
		return errors.Wrap(err, "revoking access code")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *accessApi) sweep(ctx echo.Context) error {
	count, err := api.svc.SweepExpired(ctx.Request().Context(), time.Now())
	if err != nil {
		return errors.Wrap(err, "sweeping expired codes")
	}
	return ctx.JSON(http.StatusOK, SweepResponse{Expired: count})
}

func (api *accessApi) validateCode(ctx echo.Context) error {
	var data ValidateCodeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ValidateCodeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Validate(ctx.Request().Context(), data.Code, access.Role(data.Role))
	if err != nil {
		return errors.Wrap(err, "validating access code")
	}
	return ctx.JSON(http.StatusOK, ValidateCodeResponse{
		Role:           string(c.Role),
		BoundStudentID: c.BoundStudentID,
		ValidUntil:     c.ValidUntil,
	})
}

func (api *accessApi) consume(ctx echo.Context) error {
	var data ConsumeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConsumeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Consume(ctx.Request().Context(), data.Code, data.RegisteredBy)
	if err != nil {
		return errors.Wrap(err, "consuming access code")
	}

	grant, err := newRegistrationGrant(api.conf, c, data.RegisteredBy)
	if err != nil {
		return errors.Wrap(err, "generating registration grant")
	}
	return ctx.JSON(http.StatusOK, ConsumeResponse{Code: c, Grant: grant})
}

type (
	IssueRequest struct {
		Role           string `json:"role" validate:"required,oneof=STUDENT TEACHER PARENT"`
		BoundStudentID string `json:"bound_student_id"`
		ValidityDays   int    `json:"validity_days" validate:"gte=0"`
	}

	BulkIssueRequest struct {
		StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	}

	RevokeRequest struct {
		Code   string `json:"code" validate:"required"`
		Reason string `json:"reason" validate:"required"`
	}

	SweepResponse struct {
		Expired int `json:"expired"`
	}

	ValidateCodeRequest struct {
		Code string `json:"code" validate:"required"`
		Role string `json:"role" validate:"omitempty,oneof=STUDENT TEACHER PARENT"`
	}

	ValidateCodeResponse struct {
		Role           string    `json:"role"`
		BoundStudentID string    `json:"bound_student_id,omitempty"`
		ValidUntil     time.Time `json:"valid_until"`
	}

	ConsumeRequest struct {
		Code         string `json:"code" validate:"required"`
		RegisteredBy string `json:"registered_by" validate:"required,email"`
	}

	ConsumeResponse struct {
		Code  access.Code `json:"code"`
		Grant string      `json:"grant"`
	}
)

func (ir *IssueRequest) Validate(validate *validator.Validate) error {
	ir.Role = core.CleanCode(ir.Role)
	ir.BoundStudentID = core.CleanCode(ir.BoundStudentID)
	return validate.Struct(ir)
}

func (br *BulkIssueRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(br)
}

func (rr *RevokeRequest) Validate(validate *validator.Validate) error {
	rr.Code = core.CleanCode(rr.Code)
	rr.Reason = core.CleanString(rr.Reason)
	return validate.Struct(rr)
}

func (vr *ValidateCodeRequest) Validate(validate *validator.Validate) error {
	vr.Code = core.CleanCode(vr.Code)
	vr.Role = core.CleanCode(vr.Role)
	return validate.Struct(vr)
}

func (cr *ConsumeRequest) Validate(validate *validator.Validate) error {
	cr.Code = core.CleanCode(cr.Code)
	cr.RegisteredBy = core.CleanString(cr.RegisteredBy, true /* lower */)
	return validate.Struct(cr)
}
