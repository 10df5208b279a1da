package sqlxrepos

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/wizard"
)

func TestBuildQuery(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	selectAll := "SELECT " + applicationColumns + " FROM application"

	tests := []struct {
		name     string
		filter   *application.QueryFilter
		ordering []core.DBOrdering
		wantQ    string
		wantArgs []interface{}
	}{
		{
			name:  "no filter",
			wantQ: selectAll + " ORDER BY created_at DESC",
		},
		{
			name:   "form and statuses",
			filter: &application.QueryFilter{Form: "agent-application", Statuses: []application.Status{application.StatusReceived}},
			wantQ:  selectAll + " WHERE form = $1 AND status = ANY($2) ORDER BY created_at DESC",
			wantArgs: []interface{}{
				"agent-application",
				pq.Array([]string{"received"}),
			},
		},
		{
			name:     "search and dates",
			filter:   &application.QueryFilter{Search: "ada", CreatedFrom: from},
			ordering: []core.DBOrdering{{Field: "applicant_name", Ascending: true}, {Field: "id"}},
			wantQ: selectAll + " WHERE (applicant_name ILIKE $1 OR applicant_email ILIKE $1 OR id::text ILIKE $1)" +
				" AND created_at >= $2 ORDER BY applicant_name ASC, id DESC",
			wantArgs: []interface{}{"%ada%", from},
		},
		{
			name:     "unknown ordering is dropped",
			ordering: []core.DBOrdering{{Field: "data; DROP TABLE application"}},
			wantQ:    selectAll + " ORDER BY created_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildQuery(tt.filter, tt.ordering)
			assert.Equal(t, tt.wantQ, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRows(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	app := application.Application{
		ID:             "0f8fad5b-d9cb-469f-a165-70867728950e",
		SubmissionKey:  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Form:           "student-application",
		ApplicantName:  "Ada Lovelace",
		ApplicantEmail: "ada@example.com",
		Status:         application.StatusReceived,
		Data:           wizard.Draft{"firstName": "Ada", "declaration": true},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	row, err := toRow(app)
	require.NoError(t, err)
	assert.JSONEq(t, `{"firstName":"Ada","declaration":true}`, string(row.Data))

	got, err := fromRow(row, []attachmentRow{{ID: "att", ApplicationID: app.ID, Name: "cv.pdf", Size: 3, Path: "x/att-cv.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, app.Data, got.Data)
	assert.Equal(t, []application.Attachment{{ID: "att", Name: "cv.pdf", Size: 3, Path: "x/att-cv.pdf"}}, got.Attachments)
	assert.Equal(t, now, got.CreatedAt)
}

func TestValidIDs(t *testing.T) {
	assert.Equal(t, []string{"0f8fad5b-d9cb-469f-a165-70867728950e"}, validIDs([]string{"1", "0f8fad5b-d9cb-469f-a165-70867728950e", ""}))
}

func TestTrapDBErr(t *testing.T) {
	assert.Equal(t, application.ErrNotFound, trapDBErr(errors.Wrap(sql.ErrNoRows, "scan"), "finding application"))

	err := trapDBErr(sql.ErrConnDone, "querying applications")
	assert.True(t, core.IsShutdown(err))
	assert.EqualError(t, err, "querying applications: sql: connection is already closed")

	err = trapDBErr(errors.New("boom"), "querying applications")
	assert.False(t, core.IsShutdown(err))
	assert.EqualError(t, err, "querying applications: boom")
}
