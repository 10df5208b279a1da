package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/wizard"
	submitsvc "github.com/trezcool/academia/services/submission"
)

const (
	maxUploads = 20
	// multipart parts above this size are spooled to disk
	maxMemory = 8 << 20
)

// submit receives a wizard draft as multipart (a "data" JSON part plus "files" parts) or as JSON.
// A replayed Idempotency-Key answers 200 with the application stored the first time.
func (api *formApi) submit(ctx echo.Context) error {
	na := application.NewApplication{
		Form:          ctx.Param("form"),
		SubmissionKey: ctx.Request().Header.Get(submitsvc.IdempotencyKeyHeader),
	}

	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := ctx.Request().ParseMultipartForm(maxMemory); err != nil {
			return core.NewValidationError(errors.Wrap(err, "malformed multipart body"))
		}
		form := ctx.Request().MultipartForm
		defer func() { _ = form.RemoveAll() }()

		if vals := form.Value["data"]; len(vals) > 0 {
			var err error
			if na.Data, err = decodeDraft(strings.NewReader(vals[0])); err != nil {
				return core.NewValidationError(nil, core.FieldError{Field: "data", Error: "must be a JSON object"})
			}
		}
		if len(form.File["files"]) > maxUploads {
			return core.NewValidationError(nil, core.FieldError{Field: "files", Error: "too many files"})
		}
		for _, fh := range form.File["files"] {
			na.Uploads = append(na.Uploads, uploadFile(fh))
		}
	} else {
		body, err := io.ReadAll(ctx.Request().Body)
		if err != nil {
			return errors.Wrap(err, "reading request body")
		}
		var req struct {
			Data json.RawMessage `json:"data"`
		}
		if err = json.Unmarshal(body, &req); err != nil {
			return core.NewValidationError(errors.New("malformed JSON body"))
		}
		if len(req.Data) > 0 {
			if na.Data, err = decodeDraft(bytes.NewReader(req.Data)); err != nil {
				return core.NewValidationError(nil, core.FieldError{Field: "data", Error: "must be a JSON object"})
			}
		}
	}

	app, duplicate, err := api.svc.Create(ctx.Request().Context(), na)
	if err != nil {
		return err
	}
	if duplicate {
		return ctx.JSON(http.StatusOK, app)
	}
	return ctx.JSON(http.StatusCreated, app)
}

// decodeDraft keeps numbers as json.Number so integers are not turned into floats.
func decodeDraft(r io.Reader) (wizard.Draft, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var draft wizard.Draft
	if err := dec.Decode(&draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func uploadFile(fh *multipart.FileHeader) wizard.File {
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = "application/octet-stream"
	}
	return wizard.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: ct,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
