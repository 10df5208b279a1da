package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/forms"
	"github.com/trezcool/academia/core/wizard"
)

// stubPrompter replays scripted answers: strings for inputs, bools for
// confirms and option labels for selects.
type stubPrompter struct {
	t       *testing.T
	answers []interface{}
	infos   []string
}

func (sp *stubPrompter) next(msg string) interface{} {
	sp.t.Helper()
	require.NotEmptyf(sp.t, sp.answers, "no answer left for %q", msg)
	ans := sp.answers[0]
	sp.answers = sp.answers[1:]
	return ans
}

func (sp *stubPrompter) Input(_ context.Context, p inputPrompt) (string, error) {
	sp.t.Helper()
	ans, ok := sp.next(p.Message).(string)
	require.Truef(sp.t, ok, "expected a string answer for %q", p.Message)
	if p.Validate != nil {
		require.NoErrorf(sp.t, p.Validate(ans), "answer for %q", p.Message)
	}
	return ans, nil
}

func (sp *stubPrompter) Confirm(_ context.Context, p confirmPrompt) (bool, error) {
	sp.t.Helper()
	ans, ok := sp.next(p.Message).(bool)
	require.Truef(sp.t, ok, "expected a bool answer for %q", p.Message)
	return ans, nil
}

func (sp *stubPrompter) Select(_ context.Context, p selectPrompt) (int, error) {
	sp.t.Helper()
	ans, ok := sp.next(p.Message).(string)
	require.Truef(sp.t, ok, "expected an option label for %q", p.Message)
	for i, opt := range p.Options {
		if opt == ans {
			return i, nil
		}
	}
	sp.t.Fatalf("%q is not an option of %q: %v", ans, p.Message, p.Options)
	return 0, nil
}

func (sp *stubPrompter) Info(_ context.Context, msg string) error {
	sp.infos = append(sp.infos, msg)
	return nil
}

func (sp *stubPrompter) said(substr string) bool {
	for _, info := range sp.infos {
		if strings.Contains(info, substr) {
			return true
		}
	}
	return false
}

func TestApply_agentRegistration(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "licence.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.4 licence"), 0o600))

	var subs []wizard.Submission
	sub := wizard.SubmitterFunc(func(ctx context.Context, s wizard.Submission) (wizard.Receipt, error) {
		subs = append(subs, s)
		if len(subs) == 1 {
			return wizard.Receipt{}, errors.New("connection refused")
		}
		return wizard.Receipt{ID: "app-1"}, nil
	})

	sp := &stubPrompter{t: t, answers: []interface{}{
		// Agency, country left empty
		"Globe Agents", "", "",
		actNext,
		"Globe Agents", "https://globe.test", "Kenya",
		actNext,
		// Primary Contact
		"Ada", "Obi", "ada@globe.test", "",
		actNext,
		// Experience
		"7", "East Africa",
		listAdd, "Uni A", "partner", "intl@unia.test", "",
		listAdd, "Uni B", "", "", "",
		listRemove, "2. Uni B",
		listDone,
		actNext,
		// Agreement
		true,
		actAttach, doc,
		actSubmit,
		actSubmit,
	}}

	receipt, err := apply(context.Background(), "agent-registration", applyOptions{}, sub, sp)
	require.NoError(t, err)
	assert.Equal(t, wizard.Receipt{ID: "app-1"}, receipt)
	assert.Empty(t, sp.answers)

	assert.True(t, sp.said("Please fill in Country (section 1: Agency)"))
	assert.True(t, sp.said("Step 4/4: Agreement  [✓ 1] [✓ 2] [✓ 3] [• 4]"))
	assert.True(t, sp.said("Attached licence.pdf"))
	assert.True(t, sp.said("Error: submission failed: connection refused. Your answers are kept, you can try again."))
	assert.True(t, sp.said("Application received, reference app-1"))

	require.Len(t, subs, 2)
	assert.Equal(t, subs[0].Key, subs[1].Key, "retries reuse the submission key")
	got := subs[1]
	assert.Equal(t, "agent-registration", got.Form)
	assert.Equal(t, "Kenya", got.Draft["country"])
	assert.Equal(t, int64(7), got.Draft["yearsRecruiting"])
	assert.Equal(t, true, got.Draft["acceptTerms"])
	refs, ok := got.Draft["references"].([]wizard.Entry)
	require.True(t, ok)
	require.Len(t, refs, 1)
	assert.Equal(t, "Uni A", refs[0]["name"])
	assert.Equal(t, "intl@unia.test", refs[0]["email"])
	require.Len(t, got.Files, 1)
	assert.Equal(t, "licence.pdf", got.Files[0].Name)
	assert.Equal(t, "application/pdf", got.Files[0].ContentType)
}

func TestApply_quit(t *testing.T) {
	sub := wizard.SubmitterFunc(func(ctx context.Context, s wizard.Submission) (wizard.Receipt, error) {
		t.Fatal("nothing should be submitted")
		return wizard.Receipt{}, nil
	})
	sp := &stubPrompter{t: t, answers: []interface{}{
		"", "", "",
		actQuit, false,
		actQuit, true,
	}}

	_, err := apply(context.Background(), "agent-registration", applyOptions{}, sub, sp)
	assert.Equal(t, errAborted, err)
	assert.Empty(t, sp.answers)
}

func TestApply_unknownForm(t *testing.T) {
	sub := wizard.SubmitterFunc(func(ctx context.Context, s wizard.Submission) (wizard.Receipt, error) {
		return wizard.Receipt{}, nil
	})
	_, err := apply(context.Background(), "agent-registraton", applyOptions{}, sub, &stubPrompter{t: t})
	assert.Equal(t, forms.ErrUnknownForm, errors.Cause(err))

	_, err = apply(context.Background(), "agent-registration", applyOptions{attach: []string{"/no/such/file.pdf"}}, sub, &stubPrompter{t: t})
	assert.Error(t, err)
}

func TestSession_ask(t *testing.T) {
	tests := []struct {
		name   string
		field  wizard.Field
		cur    interface{}
		answer interface{}
		want   interface{}
	}{
		{"text trimmed", wizard.Field{Name: "city", Label: "City", Kind: wizard.KindText}, nil, "  Nairobi ", "Nairobi"},
		{"email", wizard.Field{Name: "email", Label: "Email", Kind: wizard.KindEmail}, nil, "a@b.test", "a@b.test"},
		{"integer", wizard.Field{Name: "n", Label: "N", Kind: wizard.KindNumber}, nil, "42", int64(42)},
		{"decimal", wizard.Field{Name: "gpa", Label: "GPA", Kind: wizard.KindNumber}, 3.1, "3.75", 3.75},
		{"blank number", wizard.Field{Name: "n", Label: "N", Kind: wizard.KindNumber}, int64(1), "", nil},
		{"date", wizard.Field{Name: "dob", Label: "Date of birth", Kind: wizard.KindDate}, nil, "2001-02-03", "2001-02-03"},
		{"bool", wizard.Field{Name: "ok", Label: "OK", Kind: wizard.KindBool}, false, true, true},
		{
			"choice",
			wizard.Field{Name: "intake", Label: "Intake", Kind: wizard.KindChoice, Required: true, Options: []string{"january", "september"}},
			nil, "september", "september",
		},
		{
			"optional choice skipped",
			wizard.Field{Name: "intake", Label: "Intake", Kind: wizard.KindChoice, Options: []string{"january", "september"}},
			"january", skipChoice, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &stubPrompter{t: t, answers: []interface{}{tt.answer}}
			s := &session{p: sp}
			got, err := s.ask(context.Background(), tt.field, tt.cur)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, sp.answers)
		})
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateNumber("12"))
	assert.NoError(t, validateNumber(""))
	assert.EqualError(t, validateNumber("twelve"), "must be a number")

	assert.NoError(t, validateDate("2024-09-01"))
	assert.NoError(t, validateDate(" "))
	assert.EqualError(t, validateDate("01/09/2024"), "must be a date formatted as YYYY-MM-DD")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "3.5", formatValue(3.5))
	assert.Equal(t, "7", formatValue(int64(7)))
	assert.Equal(t, "x", formatValue("x"))
}
