package forms

import (
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/wizard"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"agent-application", "agent-registration", "ofqual-enrollment", "student-application"},
		reg.Names(),
	)

	tests := []struct {
		form     string
		sections int
		jump     wizard.JumpPolicy
		submit   wizard.SubmitPolicy
	}{
		{"student-application", 9, wizard.JumpAny, wizard.SubmitFromLast},
		{"agent-application", 4, wizard.JumpVisited, wizard.SubmitFromLast},
		{"ofqual-enrollment", 4, wizard.JumpNone, wizard.SubmitFromLast},
		{"agent-registration", 4, wizard.JumpNone, wizard.SubmitFromAny},
	}
	for _, tt := range tests {
		t.Run(tt.form, func(t *testing.T) {
			schema, err := reg.Get(tt.form)
			require.NoError(t, err)
			assert.Equal(t, tt.sections, schema.Len())
			assert.Equal(t, tt.jump, schema.JumpPolicy())
			assert.Equal(t, tt.submit, schema.SubmitPolicy())
			assert.NotEmpty(t, schema.Title)
		})
	}
}

func TestDefault_studentApplication(t *testing.T) {
	schema, err := MustDefault().Get("student-application")
	require.NoError(t, err)

	sec, _ := schema.Section(1)
	assert.Equal(t, []string{"firstName", "lastName", "email", "programme"}, sec.Required())

	refs, n, ok := schema.Field("references")
	require.True(t, ok)
	assert.Equal(t, wizard.KindList, refs.Kind)
	assert.Equal(t, 8, n)
	assert.Equal(t, wizard.Entry{"name": "", "relationship": "", "email": "", "contact": ""}, refs.EmptyEntry())

	for _, list := range []string{"academicHistory", "employment"} {
		f, _, ok := schema.Field(list)
		require.True(t, ok, list)
		assert.Equal(t, wizard.KindList, f.Kind, list)
	}
}

func TestRegistry_Get_unknown(t *testing.T) {
	reg := MustDefault()

	_, err := reg.Get("studnet-application")
	require.Error(t, err)
	assert.Equal(t, ErrUnknownForm, errors.Cause(err))
	assert.Contains(t, err.Error(), `did you mean "student-application"?`)

	_, err = reg.Get("zzz")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestRegistry_List(t *testing.T) {
	schemas := MustDefault().List()
	require.Len(t, schemas, 4)
	assert.Equal(t, "agent-application", schemas[0].Name)
	assert.Equal(t, "student-application", schemas[3].Name)
}

func TestLoad(t *testing.T) {
	const valid = `
name: demo
title: Demo
sections:
  - label: One
    fields:
      - {name: a, label: A, kind: text, required: true}
`
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
		want    []string
	}{
		{
			name:  "skips other files",
			files: fstest.MapFS{"demo.yml": {Data: []byte(valid)}, "README.md": {Data: []byte("# forms")}},
			want:  []string{"demo"},
		},
		{
			name:    "empty file",
			files:   fstest.MapFS{"demo.yaml": {Data: []byte("  \n")}},
			wantErr: "is empty",
		},
		{
			name:    "malformed yaml",
			files:   fstest.MapFS{"demo.yaml": {Data: []byte("name: [")}},
			wantErr: "parsing demo.yaml",
		},
		{
			name:    "invalid schema",
			files:   fstest.MapFS{"demo.yaml": {Data: []byte("name: demo\n")}},
			wantErr: "has no sections",
		},
		{
			name: "duplicate names",
			files: fstest.MapFS{
				"a.yaml":     {Data: []byte(valid)},
				"sub/b.yaml": {Data: []byte(valid)},
			},
			wantErr: `duplicate form "demo"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Load(tt.files)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, reg.Names())
		})
	}
}
