package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/application"
)

type applicationApi struct {
	svc *application.Service
}

func registerApplicationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *application.Service) {
	api := applicationApi{svc: svc}

	ag := g.Group("/applications", jwt, staffMiddleware())
	ag.GET("", api.query)
	ag.DELETE("", api.destroyMultiple, adminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", objectMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PATCH("/status", api.updateStatus)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/attachments/:attachment", api.downloadAttachment)
}

// Handlers

func (api *applicationApi) query(ctx echo.Context) error {
	filter := new(application.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []application.Application{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	apps, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []application.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	app, err := contextObject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) updateStatus(ctx echo.Context) error {
	app, err := contextObject(ctx)
	if err != nil {
		return err
	}

	var data application.UpdateStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	app, err = api.svc.UpdateStatus(ctx.Request().Context(), app.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) destroy(ctx echo.Context) error {
	app, err := contextObject(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.Delete(ctx.Request().Context(), app.ID); err != nil {
		return errors.Wrap(err, "deleting application")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *applicationApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting applications")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *applicationApi) downloadAttachment(ctx echo.Context) error {
	app, err := contextObject(ctx)
	if err != nil {
		return err
	}
	att, rc, err := api.svc.OpenAttachment(ctx.Request().Context(), app.ID, ctx.Param("attachment"))
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+strconv.Quote(att.Name))
	ctx.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(att.Size, 10))
	return ctx.Stream(http.StatusOK, att.ContentType, rc)
}

// objectMiddleware loads the application named by the `:id` path param into the context.
func objectMiddleware(svc *application.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			app, err := svc.Get(ctx.Request().Context(), ctx.Param("id"))
			switch errors.Cause(err) {
			case nil:
				ctx.Set(contextObjectKey, app)
				return next(ctx)
			case application.ErrNotFound:
				return errHttpNotFound
			default:
				return errors.Wrap(err, "finding application by ID")
			}
		}
	}
}

var (
	contextObjectKey    = "object"
	errObjNotFoundInCtx = errors.New("application not found in echo.Context")
)

func contextObject(ctx echo.Context) (application.Application, error) {
	app, ok := ctx.Get(contextObjectKey).(application.Application)
	if !ok {
		return application.Application{}, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return app, nil
}

type DestroyMultipleRequest struct {
	IDs []string `query:"id"`
}
