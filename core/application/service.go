// Package application stores the records submitted by the intake wizards and tracks their review.
package application

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/forms"
)

var (
	// errors
	ErrNotFound            = errors.New("application not found")
	ErrAttachmentNotFound  = errors.New("attachment not found")
	ErrDuplicateSubmission = errors.New("an application with this submission key already exists")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrFileTooLarge        = errors.New("file is too large")

	nowFunc = time.Now                                  // mockable
	newID   = func() string { return uuid.New().String() } // mockable
)

type (
	Repository interface {
		// CreateApplication stores the application and its attachments atomically.
		// It returns ErrDuplicateSubmission when the submission key is already taken.
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplication(ctx context.Context, id string) (Application, error)
		GetApplicationBySubmissionKey(ctx context.Context, key string) (Application, error)
		// QueryApplications applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of the applicant name, email or ID.
		QueryApplications(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Application, error)
		UpdateApplicationStatus(ctx context.Context, id string, status Status, updatedAt time.Time) (Application, error)
		DeleteApplicationsByID(ctx context.Context, ids ...string) (int, error)
	}

	// FileStore keeps attachment contents out of the database.
	FileStore interface {
		// Save writes r under the application's directory and returns the storage key and size.
		// It returns ErrFileTooLarge when r exceeds the configured limit.
		Save(appID, attID, name string, r io.Reader) (path string, size int64, err error)
		Open(path string) (io.ReadCloser, error)
		Remove(path string) error
	}

	Service struct {
		repo     Repository
		files    FileStore
		forms    *forms.Registry
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	files FileStore,
	reg *forms.Registry,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		files:    files,
		forms:    reg,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
	}
}

func (svc *Service) Forms() *forms.Registry { return svc.forms }

// Create stores a submission. A submission key that was already used returns the stored
// application with duplicate set, so a retried submission never creates a second record.
func (svc *Service) Create(ctx context.Context, na NewApplication) (app Application, duplicate bool, err error) {
	if err = na.Validate(svc); err != nil {
		return Application{}, false, err
	}

	if na.SubmissionKey != "" {
		app, err = svc.repo.GetApplicationBySubmissionKey(ctx, na.SubmissionKey)
		switch errors.Cause(err) {
		case nil:
			return app, true, nil
		case ErrNotFound:
		default:
			return Application{}, false, err
		}
	} else {
		na.SubmissionKey = newID()
	}

	now := nowFunc().UTC()
	name, email := applicant(na.Data)
	app = Application{
		ID:             newID(),
		SubmissionKey:  na.SubmissionKey,
		Form:           na.Form,
		ApplicantName:  name,
		ApplicantEmail: email,
		Status:         StatusReceived,
		Data:           na.Data.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// nothing is kept unless the whole submission is stored
	var saved []Attachment
	defer func() {
		if err != nil {
			svc.removeFiles(saved)
		}
	}()
	for i, up := range na.Uploads {
		att, err := svc.saveUpload(app.ID, i, up.Name, up.ContentType, up.Open)
		if err != nil {
			return Application{}, false, err
		}
		saved = append(saved, att)
	}
	app.Attachments = saved

	created, err := svc.repo.CreateApplication(ctx, app)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateSubmission {
			// lost a race against a concurrent retry of the same draft
			svc.removeFiles(saved)
			saved = nil
			existing, err := svc.repo.GetApplicationBySubmissionKey(ctx, app.SubmissionKey)
			if err != nil {
				return Application{}, false, err
			}
			return existing, true, nil
		}
		return Application{}, false, err
	}

	svc.sendReceivedMail(created)
	return created, false, nil
}

func (svc *Service) saveUpload(appID string, pos int, name, contentType string, open func() (io.ReadCloser, error)) (Attachment, error) {
	field := "files"
	if open == nil {
		return Attachment{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "file " + name + " has no content"})
	}
	rc, err := open()
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "opening upload %d", pos)
	}
	defer func() { _ = rc.Close() }()

	att := Attachment{ID: newID(), Name: name, ContentType: contentType}
	if att.Path, att.Size, err = svc.files.Save(appID, att.ID, name, rc); err != nil {
		if errors.Cause(err) == ErrFileTooLarge {
			return Attachment{}, core.NewValidationError(err, core.FieldError{Field: field, Error: name + ": " + err.Error()})
		}
		return Attachment{}, errors.Wrapf(err, "saving upload %d", pos)
	}
	return att, nil
}

func (svc *Service) removeFiles(atts []Attachment) {
	for _, att := range atts {
		_ = svc.files.Remove(att.Path)
	}
}

func (svc *Service) Get(ctx context.Context, id string) (Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Application{}, ErrNotFound
	}
	return svc.repo.GetApplication(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Application, error) {
	if filter != nil {
		filter.Clean()
	}
	var fields []core.FieldError
	for _, ord := range ordering {
		if !IsOrderingField(ord.Field) {
			fields = append(fields, core.FieldError{
				Field: "ordering",
				Error: fmt.Sprintf("cannot order by %q%s", ord.Field, core.DidYouMean(ord.Field, OrderingFields)),
			})
		}
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(nil, fields...)
	}
	return svc.repo.QueryApplications(ctx, filter, ordering)
}

// UpdateStatus moves an application along its review. Accepted, rejected and withdrawn
// applications cannot change anymore.
func (svc *Service) UpdateStatus(ctx context.Context, id string, us UpdateStatus) (Application, error) {
	if err := us.Validate(svc); err != nil {
		return Application{}, err
	}
	app, err := svc.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !app.Status.CanBecome(us.Status) {
		return Application{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", app.Status, us.Status)
	}

	app, err = svc.repo.UpdateApplicationStatus(ctx, id, us.Status, nowFunc().UTC())
	if err != nil {
		return Application{}, err
	}
	svc.sendStatusMail(app, us.Note)
	return app, nil
}

// Delete removes applications and their stored files.
func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	var atts []Attachment
	for _, id := range ids {
		app, err := svc.Get(ctx, id)
		switch errors.Cause(err) {
		case nil:
			atts = append(atts, app.Attachments...)
		case ErrNotFound:
		default:
			return 0, err
		}
	}

	cnt, err := svc.repo.DeleteApplicationsByID(ctx, ids...)
	if err != nil {
		return 0, err
	}
	svc.removeFiles(atts)
	return cnt, nil
}

// OpenAttachment returns an attachment's metadata and content; the caller closes the reader.
func (svc *Service) OpenAttachment(ctx context.Context, appID, attID string) (Attachment, io.ReadCloser, error) {
	app, err := svc.Get(ctx, appID)
	if err != nil {
		return Attachment{}, nil, err
	}
	att, ok := app.Attachment(attID)
	if !ok {
		return Attachment{}, nil, ErrAttachmentNotFound
	}
	rc, err := svc.files.Open(att.Path)
	if err != nil {
		return Attachment{}, nil, errors.Wrap(err, "opening attachment")
	}
	return att, rc, nil
}

type mailData struct {
	ID          string
	Name        string
	FormTitle   string
	Attachments int
	Status      string
	Note        string
}

func (svc *Service) newMailData(app Application) mailData {
	title := app.Form
	if schema, err := svc.forms.Get(app.Form); err == nil {
		title = schema.Title
	}
	return mailData{
		ID:          app.ID,
		Name:        app.ApplicantName,
		FormTitle:   title,
		Attachments: len(app.Attachments),
		Status:      string(app.Status),
	}
}

func (svc *Service) recipients(app Application) []mail.Address {
	if app.ApplicantEmail == "" {
		return nil
	}
	return []mail.Address{{Name: app.ApplicantName, Address: app.ApplicantEmail}}
}

func (svc *Service) sendReceivedMail(app Application) {
	to := svc.recipients(app)
	if to == nil || svc.mailSvc == nil {
		return
	}
	data := svc.newMailData(app)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "We received your " + data.FormTitle,
		TemplateName: "application_received",
		TemplateData: data,
	})
}

func (svc *Service) sendStatusMail(app Application, note string) {
	to := svc.recipients(app)
	if to == nil || svc.mailSvc == nil {
		return
	}
	data := svc.newMailData(app)
	data.Note = note
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Your " + data.FormTitle + " has been updated",
		TemplateName: "status_changed",
		TemplateData: data,
	})
}
