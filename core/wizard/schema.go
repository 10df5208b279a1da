package wizard

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindEmail  FieldKind = "email"
	KindBool   FieldKind = "bool"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
	KindChoice FieldKind = "choice"
	KindList   FieldKind = "list"
)

var kinds = map[FieldKind]bool{
	KindText: true, KindEmail: true, KindBool: true, KindNumber: true,
	KindDate: true, KindChoice: true, KindList: true,
}

// JumpPolicy controls direct navigation through the step indicator.
type JumpPolicy string

const (
	JumpNone    JumpPolicy = "none"    // Next/Previous only
	JumpVisited JumpPolicy = "visited" // any visited or the current section, no validation
	JumpAny     JumpPolicy = "any"     // any section, no validation
)

// SubmitPolicy controls from which sections a draft may be submitted.
type SubmitPolicy string

const (
	SubmitFromLast SubmitPolicy = "last"
	SubmitFromAny  SubmitPolicy = "any"
)

// DateLayout is the layout of date values exchanged as strings.
const DateLayout = "2006-01-02"

type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label" yaml:"label"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required,omitempty" yaml:"required"`
	Options  []string  `json:"options,omitempty" yaml:"options"`
	Fields   []Field   `json:"fields,omitempty" yaml:"fields"` // entry fields of a list
}

// EmptyEntry returns the blank template appended by "add another" on a list field.
func (f Field) EmptyEntry() Entry {
	entry := make(Entry, len(f.Fields))
	for _, sub := range f.Fields {
		switch sub.Kind {
		case KindBool:
			entry[sub.Name] = false
		case KindNumber:
			entry[sub.Name] = nil
		default:
			entry[sub.Name] = ""
		}
	}
	return entry
}

type Section struct {
	Label  string  `json:"label" yaml:"label"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// Required returns the names of the section's required fields, in declaration order.
func (s Section) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

type Schema struct {
	Name     string       `json:"name" yaml:"name"`
	Title    string       `json:"title" yaml:"title"`
	Jump     JumpPolicy   `json:"jump" yaml:"jump"`
	Submit   SubmitPolicy `json:"submit" yaml:"submit"`
	Sections []Section    `json:"sections" yaml:"sections"`
}

// Len returns the number of sections N.
func (s *Schema) Len() int { return len(s.Sections) }

// Section returns the 1-indexed section n.
func (s *Schema) Section(n int) (Section, bool) {
	if n < 1 || n > len(s.Sections) {
		return Section{}, false
	}
	return s.Sections[n-1], true
}

// Field looks up a top-level field and the section it belongs to.
func (s *Schema) Field(name string) (Field, int, bool) {
	for i, sec := range s.Sections {
		for _, f := range sec.Fields {
			if f.Name == name {
				return f, i + 1, true
			}
		}
	}
	return Field{}, 0, false
}

// FieldNames lists every top-level field name.
func (s *Schema) FieldNames() []string {
	var names []string
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			names = append(names, f.Name)
		}
	}
	return names
}

func (s *Schema) JumpPolicy() JumpPolicy {
	if s.Jump == "" {
		return JumpNone
	}
	return s.Jump
}

func (s *Schema) SubmitPolicy() SubmitPolicy {
	if s.Submit == "" {
		return SubmitFromLast
	}
	return s.Submit
}

// MissingFields returns the required fields of section n that are empty in draft.
// It is pure: out-of-range sections and sections without required fields yield nil.
func (s *Schema) MissingFields(n int, draft Draft) []string {
	sec, ok := s.Section(n)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range sec.Required() {
		if IsEmpty(draft[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateSection reports whether every required field of section n is non-empty.
func (s *Schema) ValidateSection(n int, draft Draft) bool {
	return len(s.MissingFields(n, draft)) == 0
}

// Validate checks that the schema is well formed.
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("wizard: schema has no name")
	}
	if len(s.Sections) == 0 {
		return errors.Errorf("wizard: schema %q has no sections", s.Name)
	}
	switch s.JumpPolicy() {
	case JumpNone, JumpVisited, JumpAny:
	default:
		return errors.Errorf("wizard: schema %q: unknown jump policy %q", s.Name, s.Jump)
	}
	switch s.SubmitPolicy() {
	case SubmitFromLast, SubmitFromAny:
	default:
		return errors.Errorf("wizard: schema %q: unknown submit policy %q", s.Name, s.Submit)
	}

	seen := make(map[string]bool)
	for i, sec := range s.Sections {
		where := fmt.Sprintf("schema %q section %d", s.Name, i+1)
		if strings.TrimSpace(sec.Label) == "" {
			return errors.Errorf("wizard: %s has no label", where)
		}
		for _, f := range sec.Fields {
			if err := validateField(f, where); err != nil {
				return err
			}
			if seen[f.Name] {
				return errors.Errorf("wizard: %s: duplicate field %q", where, f.Name)
			}
			seen[f.Name] = true
		}
	}
	return nil
}

func validateField(f Field, where string) error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.Errorf("wizard: %s: field with empty name", where)
	}
	if !kinds[f.Kind] {
		return errors.Errorf("wizard: %s: field %q has unknown kind %q", where, f.Name, f.Kind)
	}
	switch f.Kind {
	case KindChoice:
		if len(f.Options) == 0 {
			return errors.Errorf("wizard: %s: choice field %q has no options", where, f.Name)
		}
	case KindList:
		if len(f.Fields) == 0 {
			return errors.Errorf("wizard: %s: list field %q declares no entry fields", where, f.Name)
		}
		sub := make(map[string]bool, len(f.Fields))
		for _, ef := range f.Fields {
			if ef.Kind == KindList {
				return errors.Errorf("wizard: %s: list field %q nests another list", where, f.Name)
			}
			if err := validateField(ef, where+" list "+f.Name); err != nil {
				return err
			}
			if sub[ef.Name] {
				return errors.Errorf("wizard: %s: list field %q repeats entry field %q", where, f.Name, ef.Name)
			}
			sub[ef.Name] = true
		}
	}
	return nil
}
