package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

type applicationRepository struct {
	db *applicationTable
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *DB) application.Repository {
	return &applicationRepository{db: db.application}
}

// copyApp detaches a stored application from the table.
func copyApp(app application.Application) application.Application {
	app.Data = app.Data.Clone()
	app.Attachments = append([]application.Attachment(nil), app.Attachments...)
	return app
}

func (repo *applicationRepository) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.keys[app.SubmissionKey]; ok {
		return application.Application{}, application.ErrDuplicateSubmission
	}
	stored := copyApp(app)
	repo.db.table[app.ID] = &stored
	repo.db.keys[app.SubmissionKey] = app.ID
	return copyApp(stored), nil
}

func (repo *applicationRepository) GetApplication(_ context.Context, id string) (application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if app, ok := repo.db.table[id]; ok {
		return copyApp(*app), nil
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) GetApplicationBySubmissionKey(ctx context.Context, key string) (application.Application, error) {
	repo.db.mutex.RLock()
	id, ok := repo.db.keys[key]
	repo.db.mutex.RUnlock()
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	return repo.GetApplication(ctx, id)
}

func (repo *applicationRepository) QueryApplications(_ context.Context, filter *application.QueryFilter, ordering []core.DBOrdering) ([]application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	apps := make([]application.Application, 0, len(repo.db.table))
	for _, app := range repo.db.table {
		if filter.Match(*app) {
			apps = append(apps, copyApp(*app))
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(apps, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(apps[i], apps[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return apps[i].ID < apps[j].ID
	})
	return apps, nil
}

func compare(a, b application.Application, field string) int {
	switch field {
	case "id":
		return strings.Compare(a.ID, b.ID)
	case "form":
		return strings.Compare(a.Form, b.Form)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "applicant_name":
		return strings.Compare(a.ApplicantName, b.ApplicantName)
	case "applicant_email":
		return strings.Compare(a.ApplicantEmail, b.ApplicantEmail)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *applicationRepository) UpdateApplicationStatus(_ context.Context, id string, status application.Status, updatedAt time.Time) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	app, ok := repo.db.table[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	app.Status = status
	app.UpdatedAt = updatedAt.UTC()
	return copyApp(*app), nil
}

func (repo *applicationRepository) DeleteApplicationsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if app, ok := repo.db.table[id]; ok {
			delete(repo.db.keys, app.SubmissionKey)
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}
