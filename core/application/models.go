package application

import (
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/wizard"
)

type Status string

// Statuses
const (
	StatusReceived    Status = "received"
	StatusUnderReview Status = "under_review"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

var (
	Statuses = []Status{StatusReceived, StatusUnderReview, StatusAccepted, StatusRejected, StatusWithdrawn}

	// allowed status changes; terminal statuses have none
	transitions = map[Status][]Status{
		StatusReceived:    {StatusUnderReview, StatusAccepted, StatusRejected, StatusWithdrawn},
		StatusUnderReview: {StatusAccepted, StatusRejected, StatusWithdrawn},
	}
)

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

func (s Status) CanBecome(to Status) bool {
	for _, st := range transitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

func StatusNames() []string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return names
}

type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Path        string `json:"-"` // storage key
}

type Application struct {
	ID             string       `json:"id"`
	SubmissionKey  string       `json:"submission_key"`
	Form           string       `json:"form"`
	ApplicantName  string       `json:"applicant_name"`
	ApplicantEmail string       `json:"applicant_email"`
	Status         Status       `json:"status"`
	Data           wizard.Draft `json:"data"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"created_at"` // UTC
	UpdatedAt      time.Time    `json:"updated_at"` // UTC
}

// Attachment returns the attachment with the given ID.
func (app Application) Attachment(id string) (Attachment, bool) {
	for _, att := range app.Attachments {
		if att.ID == id {
			return att, true
		}
	}
	return Attachment{}, false
}

// applicant extracts who the application is for: the student, or the agency for registrations.
func applicant(data wizard.Draft) (name, email string) {
	str := func(field string) string {
		s, _ := data[field].(string)
		return core.CleanString(s)
	}
	name = strings.TrimSpace(str("firstName") + " " + str("lastName"))
	if name == "" {
		name = str("agencyName")
	}
	return name, core.CleanString(str("email"), true /* lower */)
}

// NewApplication contains the information submitted by a wizard.
type NewApplication struct {
	Form          string        `json:"form" validate:"required"`
	SubmissionKey string        `json:"submission_key" validate:"omitempty,uuid"`
	Data          wizard.Draft  `json:"data" validate:"required"`
	Uploads       []wizard.File `json:"-" validate:"max=20"`
}

func (na *NewApplication) Validate(svc *Service) error {
	na.Form = core.CleanString(na.Form, true /* lower */)
	na.SubmissionKey = core.CleanString(na.SubmissionKey, true /* lower */)

	if err := svc.validate.Struct(na); err != nil {
		return err
	}
	schema, err := svc.forms.Get(na.Form)
	if err != nil {
		return err
	}
	if fields := validateData(svc.validate, schema, na.Data); len(fields) > 0 {
		return core.NewValidationError(nil, fields...)
	}
	return nil
}

// UpdateStatus defines what information may be provided to move an application forward.
type UpdateStatus struct {
	Status Status `json:"status" validate:"required,appstatus"`
	Note   string `json:"note"`
}

func (us *UpdateStatus) Validate(svc *Service) error {
	us.Status = Status(core.CleanString(string(us.Status), true /* lower */))
	us.Note = core.CleanString(us.Note)
	return svc.validate.Struct(us)
}

// OrderingFields are the fields applications can be sorted by.
var OrderingFields = []string{"id", "form", "status", "applicant_name", "applicant_email", "created_at", "updated_at"}

func IsOrderingField(field string) bool {
	for _, f := range OrderingFields {
		if f == field {
			return true
		}
	}
	return false
}

type QueryFilter struct {
	Form        string    `query:"form"`
	Statuses    []Status  `query:"status"`
	Search      string    `query:"search"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Form == "" && qf.Statuses == nil && qf.Search == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Form = core.CleanString(qf.Form, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether app passes the filter; used by stores that cannot push it down.
func (qf *QueryFilter) Match(app Application) bool {
	if qf == nil {
		return true
	}
	if qf.Form != "" && app.Form != qf.Form {
		return false
	}
	if len(qf.Statuses) > 0 {
		var found bool
		for _, st := range qf.Statuses {
			if app.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(app.ApplicantName), search) &&
			!strings.Contains(strings.ToLower(app.ApplicantEmail), search) &&
			!strings.Contains(strings.ToLower(app.ID), search) {
			return false
		}
	}
	if !qf.CreatedFrom.IsZero() && app.CreatedAt.Before(qf.CreatedFrom.UTC()) {
		return false
	}
	if !qf.CreatedTo.IsZero() && app.CreatedAt.After(qf.CreatedTo.UTC()) {
		return false
	}
	return true
}
