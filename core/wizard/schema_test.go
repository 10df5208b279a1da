package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchema_Validate(t *testing.T) {
	valid := func() *Schema { return testSchema(JumpAny, SubmitFromAny) }

	tests := []struct {
		name    string
		mutate  func(s *Schema)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *Schema) {}},
		{name: "default policies", mutate: func(s *Schema) { s.Jump, s.Submit = "", "" }},
		{name: "no name", mutate: func(s *Schema) { s.Name = " " }, wantErr: true},
		{name: "no sections", mutate: func(s *Schema) { s.Sections = nil }, wantErr: true},
		{name: "unknown jump policy", mutate: func(s *Schema) { s.Jump = "sometimes" }, wantErr: true},
		{name: "unknown submit policy", mutate: func(s *Schema) { s.Submit = "first" }, wantErr: true},
		{name: "unlabeled section", mutate: func(s *Schema) { s.Sections[1].Label = "" }, wantErr: true},
		{name: "empty field name", mutate: func(s *Schema) { s.Sections[0].Fields[0].Name = "" }, wantErr: true},
		{name: "unknown kind", mutate: func(s *Schema) { s.Sections[0].Fields[0].Kind = "blob" }, wantErr: true},
		{
			name: "duplicate field across sections",
			mutate: func(s *Schema) {
				s.Sections[2].Fields = append(s.Sections[2].Fields, Field{Name: "email", Kind: KindEmail})
			},
			wantErr: true,
		},
		{
			name:    "choice without options",
			mutate:  func(s *Schema) { s.Sections[0].Fields[4] = Field{Name: "phone", Kind: KindChoice} },
			wantErr: true,
		},
		{
			name:    "list without entry fields",
			mutate:  func(s *Schema) { s.Sections[1].Fields[0].Fields = nil },
			wantErr: true,
		},
		{
			name: "nested list",
			mutate: func(s *Schema) {
				s.Sections[1].Fields[0].Fields[0] = Field{Name: "name", Kind: KindList, Fields: []Field{{Name: "x", Kind: KindText}}}
			},
			wantErr: true,
		},
		{
			name: "repeated entry field",
			mutate: func(s *Schema) {
				s.Sections[1].Fields[0].Fields[1].Name = "name"
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchema_lookups(t *testing.T) {
	s := testSchema("", "")
	assert.Equal(t, JumpNone, s.JumpPolicy())
	assert.Equal(t, SubmitFromLast, s.SubmitPolicy())
	assert.Equal(t, 3, s.Len())

	sec, ok := s.Section(2)
	assert.True(t, ok)
	assert.Equal(t, "References", sec.Label)
	_, ok = s.Section(0)
	assert.False(t, ok)
	_, ok = s.Section(4)
	assert.False(t, ok)

	f, n, ok := s.Field("declaration")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, KindBool, f.Kind)
	_, _, ok = s.Field("nope")
	assert.False(t, ok)

	assert.Equal(t,
		[]string{"firstName", "lastName", "email", "programme", "phone", "references", "declaration"},
		s.FieldNames(),
	)
}

func TestField_EmptyEntry(t *testing.T) {
	f := Field{Name: "history", Kind: KindList, Fields: []Field{
		{Name: "school", Kind: KindText},
		{Name: "graduated", Kind: KindBool},
		{Name: "grade", Kind: KindNumber},
		{Name: "from", Kind: KindDate},
	}}
	assert.Equal(t, Entry{"school": "", "graduated": false, "grade": nil, "from": ""}, f.EmptyEntry())
}

func TestIsEmpty(t *testing.T) {
	var nilTime *time.Time
	tests := []struct {
		name  string
		value interface{}
		want  bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"blank string", " \t\n", true},
		{"string", "x", false},
		{"false", false, true},
		{"true", true, false},
		{"zero", 0, false},
		{"float", 1.5, false},
		{"zero time", time.Time{}, true},
		{"time", time.Now(), false},
		{"nil time pointer", nilTime, true},
		{"no entries", []Entry{}, true},
		{"entries", []Entry{{}}, false},
		{"empty json list", []interface{}{}, true},
		{"empty strings", []string{}, true},
		{"strings", []string{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.value))
		})
	}
}

func TestDraft_Clone(t *testing.T) {
	d := Draft{
		"name":  "Ada",
		"refs":  []Entry{{"name": "Grace"}},
		"json":  []interface{}{map[string]interface{}{"k": "v"}},
		"langs": []string{"en"},
	}
	c := d.Clone()
	assert.Equal(t, d, c)

	c["refs"].([]Entry)[0]["name"] = "changed"
	c["json"].([]interface{})[0].(map[string]interface{})["k"] = "changed"
	c["langs"].([]string)[0] = "fr"

	assert.Equal(t, "Grace", d["refs"].([]Entry)[0]["name"])
	assert.Equal(t, "v", d["json"].([]interface{})[0].(map[string]interface{})["k"])
	assert.Equal(t, "en", d["langs"].([]string)[0])

	assert.Nil(t, Draft(nil).Clone())
}
