// Package submitsvc delivers wizard submissions to the intake API.
package submitsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/wizard"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// RejectedError is returned when the API answers with a non-success status.
type RejectedError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *RejectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("submission rejected (%d): %s", e.Status, msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for field, text := range e.Fields {
		parts = append(parts, field+": "+text)
	}
	sort.Strings(parts)
	return fmt.Sprintf("submission rejected (%d): %s [%s]", e.Status, msg, strings.Join(parts, "; "))
}

// HTTPSubmitter posts the whole draft and its files in one multipart request.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

var _ wizard.Submitter = (*HTTPSubmitter)(nil)

// NewHTTPSubmitter targets the API at endpoint; a nil client uses one without its own timeout,
// the controller bounds every attempt.
func NewHTTPSubmitter(endpoint string, client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSubmitter{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func NewHTTPSubmitterFromConfig(conf *core.Config) *HTTPSubmitter {
	return NewHTTPSubmitter(conf.Wizard.Endpoint, &http.Client{Timeout: conf.Wizard.SubmitTimeout + 5*time.Second})
}

func (s *HTTPSubmitter) url(form string) string {
	return s.endpoint + "/v1/forms/" + url.PathEscape(form) + "/submissions"
}

func (s *HTTPSubmitter) Submit(ctx context.Context, sub wizard.Submission) (wizard.Receipt, error) {
	data, err := json.Marshal(wireValue(sub.Draft))
	if err != nil {
		return wizard.Receipt{}, errors.Wrap(err, "encoding draft")
	}

	// open every file up front so an unreadable one fails before anything is sent
	parts, err := openFiles(sub.Files)
	if err != nil {
		return wizard.Receipt{}, err
	}

	// stream the body so large attachments are never held in memory
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBody(mw, data, parts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(sub.Form), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return wizard.Receipt{}, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if sub.Key != "" {
		req.Header.Set(IdempotencyKeyHeader, sub.Key)
	}

	res, err := s.client.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return wizard.Receipt{}, errors.Wrap(err, "sending submission")
	}
	defer func() { _ = res.Body.Close() }()
	return decodeResponse(res)
}

// wireValue renders dates the way the API expects them (wizard.DateLayout).
func wireValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(wizard.DateLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return wireValue(*val)
	case wizard.Draft:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = wireValue(e)
		}
		return out
	case wizard.Entry:
		return wireValue(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = wireValue(e)
		}
		return out
	case []wizard.Entry:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = wireValue(e)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = wireValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = wireValue(e)
		}
		return out
	default:
		return v
	}
}

type filePart struct {
	file wizard.File
	rc   io.ReadCloser
}

func openFiles(files []wizard.File) ([]filePart, error) {
	parts := make([]filePart, 0, len(files))
	for i, f := range files {
		var (
			rc  io.ReadCloser
			err error
		)
		if f.Open == nil {
			err = errors.New("file has no content")
		} else {
			rc, err = f.Open()
		}
		if err != nil {
			closeParts(parts)
			return nil, errors.Wrapf(err, "opening file %d (%s)", i, f.Name)
		}
		parts = append(parts, filePart{file: f, rc: rc})
	}
	return parts, nil
}

func closeParts(parts []filePart) {
	for _, p := range parts {
		_ = p.rc.Close()
	}
}

func writeBody(mw *multipart.Writer, data []byte, parts []filePart) error {
	defer closeParts(parts)
	if err := mw.WriteField("data", string(data)); err != nil {
		return errors.Wrap(err, "writing data part")
	}
	for i, p := range parts {
		if err := writeFile(mw, p); err != nil {
			return errors.Wrapf(err, "writing file %d (%s)", i, p.file.Name)
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, p filePart) error {
	ct := p.file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.file.Name))
	h.Set("Content-Type", ct)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, p.rc)
	return err
}

type receiptBody struct {
	ID string `json:"id"`
}

func decodeResponse(res *http.Response) (wizard.Receipt, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return wizard.Receipt{}, errors.Wrap(err, "reading response")
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return wizard.Receipt{}, decodeRejection(res.StatusCode, body)
	}

	var rb receiptBody
	if err = json.Unmarshal(body, &rb); err != nil {
		return wizard.Receipt{}, errors.Wrap(err, "decoding receipt")
	}
	if rb.ID == "" {
		return wizard.Receipt{}, errors.New("receipt has no id")
	}
	return wizard.Receipt{ID: rb.ID, Duplicate: res.StatusCode == http.StatusOK}, nil
}

// decodeRejection reads either {"error": "..."}, a map of field errors, or a bare JSON string.
func decodeRejection(status int, body []byte) *RejectedError {
	rej := &RejectedError{Status: status}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		var msg string
		if json.Unmarshal(body, &msg) == nil {
			rej.Message = msg
		}
		return rej
	}
	for key, val := range payload {
		text, ok := val.(string)
		if !ok {
			continue
		}
		if key == "error" {
			rej.Message = text
			continue
		}
		if rej.Fields == nil {
			rej.Fields = make(map[string]string)
		}
		rej.Fields[key] = text
	}
	return rej
}
