package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/wizard"
)

const uniqueViolation = "23505"

type (
	applicationRow struct {
		ID             string         `db:"id"`
		SubmissionKey  string         `db:"submission_key"`
		Form           string         `db:"form"`
		ApplicantName  string         `db:"applicant_name"`
		ApplicantEmail string         `db:"applicant_email"`
		Status         string         `db:"status"`
		Data           types.JSONText `db:"data"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}

	attachmentRow struct {
		ID            string `db:"id"`
		ApplicationID string `db:"application_id"`
		Position      int    `db:"position"`
		Name          string `db:"name"`
		Size          int64  `db:"size"`
		ContentType   string `db:"content_type"`
		Path          string `db:"path"`
	}
)

const (
	applicationColumns = "id, submission_key, form, applicant_name, applicant_email, status, data, created_at, updated_at"
	attachmentColumns  = "id, application_id, position, name, size, content_type, path"
)

type applicationRepository struct {
	db *sqlx.DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *sqlx.DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func toRow(app application.Application) (applicationRow, error) {
	data, err := json.Marshal(app.Data)
	if err != nil {
		return applicationRow{}, errors.Wrap(err, "encoding application data")
	}
	return applicationRow{
		ID:             app.ID,
		SubmissionKey:  app.SubmissionKey,
		Form:           app.Form,
		ApplicantName:  app.ApplicantName,
		ApplicantEmail: app.ApplicantEmail,
		Status:         string(app.Status),
		Data:           data,
		CreatedAt:      app.CreatedAt.UTC(),
		UpdatedAt:      app.UpdatedAt.UTC(),
	}, nil
}

func fromRow(row applicationRow, atts []attachmentRow) (application.Application, error) {
	var data wizard.Draft
	if err := row.Data.Unmarshal(&data); err != nil {
		return application.Application{}, errors.Wrap(err, "decoding application data")
	}
	app := application.Application{
		ID:             row.ID,
		SubmissionKey:  row.SubmissionKey,
		Form:           row.Form,
		ApplicantName:  row.ApplicantName,
		ApplicantEmail: row.ApplicantEmail,
		Status:         application.Status(row.Status),
		Data:           data,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	for _, a := range atts {
		app.Attachments = append(app.Attachments, application.Attachment{
			ID:          a.ID,
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
			Path:        a.Path,
		})
	}
	return app, nil
}

// trapDBErr maps psql "no rows" err to application.ErrNotFound and a closed pool to a shutdown error
func trapDBErr(err error, msg string) error {
	switch errors.Cause(err) {
	case sql.ErrNoRows:
		return application.ErrNotFound
	case sql.ErrConnDone:
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (_ application.Application, err error) {
	row, err := toRow(app)
	if err != nil {
		return application.Application{}, err
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := "INSERT INTO application (" + applicationColumns + ") VALUES " +
		"(:id, :submission_key, :form, :applicant_name, :applicant_email, :status, :data, :created_at, :updated_at)"
	if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return application.Application{}, application.ErrDuplicateSubmission
		}
		return application.Application{}, errors.Wrap(err, "inserting application")
	}

	q = "INSERT INTO attachment (" + attachmentColumns + ") VALUES " +
		"(:id, :application_id, :position, :name, :size, :content_type, :path)"
	for i, att := range app.Attachments {
		ar := attachmentRow{
			ID:            att.ID,
			ApplicationID: app.ID,
			Position:      i,
			Name:          att.Name,
			Size:          att.Size,
			ContentType:   att.ContentType,
			Path:          att.Path,
		}
		if _, err = tx.NamedExecContext(ctx, q, ar); err != nil {
			return application.Application{}, errors.Wrapf(err, "inserting attachment %d", i)
		}
	}

	if err = tx.Commit(); err != nil {
		return application.Application{}, errors.Wrap(err, "committing application")
	}
	return app, nil
}

func (repo *applicationRepository) attachments(ctx context.Context, appIDs ...string) (map[string][]attachmentRow, error) {
	byApp := make(map[string][]attachmentRow, len(appIDs))
	if len(appIDs) == 0 {
		return byApp, nil
	}
	var rows []attachmentRow
	q := "SELECT " + attachmentColumns + " FROM attachment WHERE application_id = ANY($1) ORDER BY application_id, position"
	if err := repo.db.SelectContext(ctx, &rows, q, pq.Array(appIDs)); err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	for _, r := range rows {
		byApp[r.ApplicationID] = append(byApp[r.ApplicationID], r)
	}
	return byApp, nil
}

func (repo *applicationRepository) getOne(ctx context.Context, where string, arg interface{}) (application.Application, error) {
	var row applicationRow
	q := "SELECT " + applicationColumns + " FROM application WHERE " + where
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return application.Application{}, trapDBErr(err, "finding application")
	}
	atts, err := repo.attachments(ctx, row.ID)
	if err != nil {
		return application.Application{}, err
	}
	return fromRow(row, atts[row.ID])
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id string) (application.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return application.Application{}, application.ErrNotFound
	}
	return repo.getOne(ctx, "id = $1", id)
}

func (repo *applicationRepository) GetApplicationBySubmissionKey(ctx context.Context, key string) (application.Application, error) {
	if _, err := uuid.Parse(key); err != nil {
		return application.Application{}, application.ErrNotFound
	}
	return repo.getOne(ctx, "submission_key = $1", key)
}

// buildQuery translates the filter and ordering into SQL; orderings are checked against application.OrderingFields.
func buildQuery(filter *application.QueryFilter, ordering []core.DBOrdering) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Form != "" {
			conds = append(conds, "form = "+arg(filter.Form))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, len(filter.Statuses))
			for i, st := range filter.Statuses {
				statuses[i] = string(st)
			}
			conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
		}
		// applications with applicant name, email or ID matching the search keyword
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(applicant_name ILIKE %s OR applicant_email ILIKE %s OR id::text ILIKE %s)", p, p, p))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	q := "SELECT " + applicationColumns + " FROM application"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if application.IsOrderingField(ord.Field) {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}
	q += " ORDER BY " + strings.Join(orderList, ", ")
	return q, args
}

func (repo *applicationRepository) QueryApplications(ctx context.Context, filter *application.QueryFilter, ordering []core.DBOrdering) ([]application.Application, error) {
	q, args := buildQuery(filter, ordering)
	var rows []applicationRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, trapDBErr(err, "querying applications")
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	atts, err := repo.attachments(ctx, ids...)
	if err != nil {
		return nil, err
	}

	apps := make([]application.Application, 0, len(rows))
	for _, r := range rows {
		app, err := fromRow(r, atts[r.ID])
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (repo *applicationRepository) UpdateApplicationStatus(ctx context.Context, id string, status application.Status, updatedAt time.Time) (application.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return application.Application{}, application.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		"UPDATE application SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), updatedAt.UTC(), id)
	if err != nil {
		return application.Application{}, trapDBErr(err, "updating application status")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return application.Application{}, application.ErrNotFound
	}
	return repo.GetApplication(ctx, id)
}

func (repo *applicationRepository) DeleteApplicationsByID(ctx context.Context, ids ...string) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	// attachments go with ON DELETE CASCADE
	res, err := repo.db.ExecContext(ctx, "DELETE FROM application WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting applications")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting applications")
	}
	return int(cnt), nil
}
