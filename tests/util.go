package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/forms"
	"github.com/trezcool/academia/core/wizard"
	attachsvc "github.com/trezcool/academia/services/attachments"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

// Env bundles an application service wired to in-memory collaborators.
type Env struct {
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Repo       application.Repository
	Fs         afero.Fs
	Files      *attachsvc.Store
	Mail       *emailsvc.ConsoleService
	AppSvc     *application.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	conf := core.NewTestConfig()

	validate, translator := Validator()
	reg, err := forms.Default()
	if err != nil {
		t.Fatalf("loading forms: %v", err)
	}

	fs := afero.NewBasePathFs(afero.NewMemMapFs(), "/attachments")
	_ = fs.MkdirAll("/", 0o750)
	env := &Env{
		Conf:       conf,
		Validate:   validate,
		Translator: translator,
		Repo:       inmemdb.NewApplicationRepository(inmemdb.Open()),
		Fs:         fs,
		Files:      attachsvc.NewStoreFs(fs, conf.Attachments.MaxBytes),
		Mail:       emailsvc.NewConsoleServiceMock(conf),
	}
	env.AppSvc = application.NewService(env.Repo, env.Files, reg, env.Mail, validate, conf)
	return env
}

// Validator returns a validator with every custom validation registered.
func Validator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	application.InitValidators(validate, translator)
	return validate, translator
}

// StoredFiles lists every attachment file currently kept by the store.
func (env *Env) StoredFiles() []string {
	var files []string
	_ = afero.Walk(env.Fs, "/", func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	return files
}

// StudentDraft returns a complete student-application draft.
func StudentDraft() wizard.Draft {
	return wizard.Draft{
		"firstName":         "Ada",
		"lastName":          "Lovelace",
		"email":             "ada@example.com",
		"programme":         "BSc Computing",
		"phone":             "+44 20 7946 0000",
		"address":           "12 St James's Square",
		"country":           "United Kingdom",
		"nationality":       "British",
		"intake":            "september",
		"studyMode":         "full-time",
		"academicHistory":   []wizard.Entry{{"institution": "Home tuition", "qualification": "Mathematics", "grade": "A", "startDate": "1830-01-01", "endDate": "1833-06-30"}},
		"personalStatement": "I would like to study the Analytical Engine.",
		"dataConsent":       true,
		"declaration":       true,
	}
}

// CreateApplication stores an application directly in repo.
func CreateApplication(
	t *testing.T,
	repo application.Repository,
	form, name, email string,
	status application.Status,
	createdAt ...time.Time,
) application.Application {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	app := application.Application{
		ID:             uuid.New().String(),
		SubmissionKey:  uuid.New().String(),
		Form:           form,
		ApplicantName:  name,
		ApplicantEmail: email,
		Status:         status,
		Data:           wizard.Draft{"email": email},
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	app, err := repo.CreateApplication(context.Background(), app)
	if err != nil {
		t.Fatalf("CreateApplication() failed: %v", err)
	}
	return app
}
