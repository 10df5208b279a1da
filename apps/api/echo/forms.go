package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/forms"
)

type formApi struct {
	forms *forms.Registry
	svc   *application.Service
}

type FormSummary struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

func registerFormAPI(g *echo.Group, svc *application.Service) {
	api := formApi{forms: svc.Forms(), svc: svc}

	fg := g.Group("/forms")
	fg.GET("", api.query)
	fg.GET("/:form", api.retrieve)
	fg.POST("/:form/submissions", api.submit)
}

func (api *formApi) query(ctx echo.Context) error {
	schemas := api.forms.List()
	summaries := make([]FormSummary, len(schemas))
	for i, schema := range schemas {
		summaries[i] = FormSummary{Name: schema.Name, Title: schema.Title}
		for _, sec := range schema.Sections {
			summaries[i].Sections = append(summaries[i].Sections, sec.Label)
		}
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *formApi) retrieve(ctx echo.Context) error {
	schema, err := api.forms.Get(ctx.Param("form"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, schema)
}
