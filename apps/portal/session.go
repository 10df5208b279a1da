package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/wizard"
	submitsvc "github.com/trezcool/academia/services/submission"
)

const (
	actNext   = "Next section"
	actPrev   = "Previous section"
	actJump   = "Go to section..."
	actEdit   = "Edit this section"
	actAttach = "Attach a file"
	actDetach = "Remove a file"
	actSubmit = "Submit application"
	actQuit   = "Quit"

	listAdd    = "Add an entry"
	listRemove = "Remove an entry"
	listDone   = "Done"

	skipChoice = "(none)"
)

// session walks an operator through a form, one section at a time.
type session struct {
	ctrl   *wizard.Controller
	schema *wizard.Schema
	p      prompter
}

func newSession(schema *wizard.Schema, ctrl *wizard.Controller, p prompter) *session {
	return &session{ctrl: ctrl, schema: schema, p: p}
}

// run loops until the draft is submitted or the operator quits.
func (s *session) run(ctx context.Context) (wizard.Receipt, error) {
	if err := s.p.Info(ctx, s.schema.Title); err != nil {
		return wizard.Receipt{}, err
	}

	fill := true
	for {
		if err := s.p.Info(ctx, s.indicator()); err != nil {
			return wizard.Receipt{}, err
		}
		if fill {
			if err := s.fillSection(ctx); err != nil {
				return wizard.Receipt{}, err
			}
		}

		actions := s.actions()
		idx, err := s.p.Select(ctx, selectPrompt{Message: "What next?", Options: actions})
		if err != nil {
			return wizard.Receipt{}, err
		}
		if idx < 0 || idx >= len(actions) {
			return wizard.Receipt{}, errors.Errorf("invalid choice %d", idx)
		}

		fill = false
		switch actions[idx] {
		case actNext:
			if err = s.ctrl.Next(); err != nil {
				if err = s.report(ctx, err); err != nil {
					return wizard.Receipt{}, err
				}
			}
			fill = true
		case actPrev:
			fill = s.ctrl.Previous()
		case actJump:
			if fill, err = s.jump(ctx); err != nil {
				return wizard.Receipt{}, err
			}
		case actEdit:
			fill = true
		case actAttach:
			if err = s.attach(ctx); err != nil {
				return wizard.Receipt{}, err
			}
		case actDetach:
			if err = s.detach(ctx); err != nil {
				return wizard.Receipt{}, err
			}
		case actSubmit:
			receipt, subErr := s.ctrl.Submit(ctx)
			if subErr == nil {
				msg := "Application received, reference " + receipt.ID
				if receipt.Duplicate {
					msg += " (already received earlier)"
				}
				return receipt, s.p.Info(ctx, msg)
			}
			if err = s.report(ctx, subErr); err != nil {
				return wizard.Receipt{}, err
			}
		case actQuit:
			ok, err := s.p.Confirm(ctx, confirmPrompt{Message: "Discard your answers and quit?"})
			if err != nil {
				return wizard.Receipt{}, err
			}
			if ok {
				return wizard.Receipt{}, errAborted
			}
		}
	}
}

// indicator renders the step indicator, e.g. "Step 2/4: Primary Contact  [✓ 1] [• 2] [ 3] [ 4]".
func (s *session) indicator() string {
	cur := s.ctrl.Current()
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d/%d: %s ", cur, s.ctrl.Len(), s.ctrl.Section().Label)
	for n := 1; n <= s.ctrl.Len(); n++ {
		mark := " "
		switch {
		case n == cur:
			mark = "•"
		case s.ctrl.Visited(n):
			mark = "✓"
		}
		fmt.Fprintf(&b, " [%s %d]", mark, n)
	}
	if files := s.ctrl.Files(); len(files) > 0 {
		fmt.Fprintf(&b, "  (%d file(s) attached)", len(files))
	}
	return b.String()
}

func (s *session) actions() []string {
	cur := s.ctrl.Current()
	var acts []string
	if cur < s.ctrl.Len() {
		acts = append(acts, actNext)
	}
	if cur > 1 {
		acts = append(acts, actPrev)
	}
	if s.schema.JumpPolicy() != wizard.JumpNone {
		acts = append(acts, actJump)
	}
	acts = append(acts, actEdit, actAttach)
	if len(s.ctrl.Files()) > 0 {
		acts = append(acts, actDetach)
	}
	if s.ctrl.CanSubmit() {
		acts = append(acts, actSubmit)
	}
	return append(acts, actQuit)
}

func (s *session) report(ctx context.Context, err error) error {
	var (
		valErr *wizard.ValidationError
		rejErr *submitsvc.RejectedError
	)
	switch {
	case errors.As(err, &valErr):
		return s.p.Info(ctx, fmt.Sprintf("Please fill in %s (section %d: %s)", strings.Join(s.labels(valErr.Missing), ", "), valErr.Section, valErr.Label))
	case errors.As(err, &rejErr) && len(rejErr.Fields) > 0:
		return s.p.Info(ctx, "The application was rejected: "+rejErr.Error())
	case errors.Is(err, wizard.ErrLastSection):
		return s.p.Info(ctx, "This is the last section.")
	default:
		return s.p.Info(ctx, "Error: "+err.Error()+". Your answers are kept, you can try again.")
	}
}

func (s *session) labels(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name
		if f, _, ok := s.schema.Field(name); ok && f.Label != "" {
			out[i] = f.Label
		}
	}
	return out
}

func (s *session) fillSection(ctx context.Context) error {
	for _, f := range s.ctrl.Section().Fields {
		if f.Kind == wizard.KindList {
			if err := s.fillList(ctx, f); err != nil {
				return err
			}
			continue
		}
		cur, _ := s.ctrl.Value(f.Name)
		val, err := s.ask(ctx, f, cur)
		if err != nil {
			return err
		}
		s.ctrl.SetField(f.Name, val)
	}
	return nil
}

func (s *session) fillList(ctx context.Context, f wizard.Field) error {
	for {
		entries := s.ctrl.Entries(f.Name)
		opts := []string{listAdd}
		if len(entries) > 0 {
			opts = append(opts, listRemove)
		}
		opts = append(opts, listDone)
		msg := fmt.Sprintf("%s (%d entries)", fieldMessage(f), len(entries))
		idx, err := s.p.Select(ctx, selectPrompt{Message: msg, Options: opts, DefaultIndex: len(opts) - 1})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(opts) {
			return errors.Errorf("invalid choice %d", idx)
		}

		switch opts[idx] {
		case listAdd:
			s.ctrl.AddEntry(f.Name, f.EmptyEntry())
			n := len(entries)
			for _, sub := range f.Fields {
				val, err := s.ask(ctx, sub, nil)
				if err != nil {
					return err
				}
				s.ctrl.UpdateEntry(f.Name, n, sub.Name, val)
			}
		case listRemove:
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = entrySummary(f, i, e)
			}
			i, err := s.p.Select(ctx, selectPrompt{Message: "Remove which entry?", Options: names})
			if err != nil {
				return err
			}
			s.ctrl.RemoveEntry(f.Name, i)
		default:
			return nil
		}
	}
}

func entrySummary(f wizard.Field, i int, e wizard.Entry) string {
	var parts []string
	for _, sub := range f.Fields {
		if v := e[sub.Name]; !wizard.IsEmpty(v) {
			parts = append(parts, fmt.Sprint(v))
		}
		if len(parts) == 2 {
			break
		}
	}
	return fmt.Sprintf("%d. %s", i+1, strings.Join(parts, ", "))
}

func fieldMessage(f wizard.Field) string {
	if f.Required {
		return f.Label + " *"
	}
	return f.Label
}

// ask prompts for one scalar field and converts the answer to its draft value.
func (s *session) ask(ctx context.Context, f wizard.Field, cur interface{}) (interface{}, error) {
	msg := fieldMessage(f)
	switch f.Kind {
	case wizard.KindBool:
		def, _ := cur.(bool)
		ok, err := s.p.Confirm(ctx, confirmPrompt{Message: msg, Default: def})
		if err != nil {
			return nil, err
		}
		return ok, nil
	case wizard.KindChoice:
		opts := append([]string(nil), f.Options...)
		if !f.Required {
			opts = append(opts, skipChoice)
		}
		def := -1
		for i, o := range opts {
			if o == fmt.Sprint(cur) {
				def = i
			}
		}
		idx, err := s.p.Select(ctx, selectPrompt{Message: msg, Options: opts, DefaultIndex: def})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(opts) || opts[idx] == skipChoice {
			return "", nil
		}
		return opts[idx], nil
	case wizard.KindNumber:
		ans, err := s.p.Input(ctx, inputPrompt{Message: msg, Default: formatValue(cur), Validate: validateNumber})
		if err != nil {
			return nil, err
		}
		return parseNumber(ans)
	case wizard.KindDate:
		ans, err := s.p.Input(ctx, inputPrompt{Message: msg, Default: formatValue(cur), Help: "YYYY-MM-DD", Validate: validateDate})
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(ans), nil
	default:
		ans, err := s.p.Input(ctx, inputPrompt{Message: msg, Default: formatValue(cur)})
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(ans), nil
	}
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(wizard.DateLayout)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func validateNumber(ans string) error {
	_, err := parseNumber(ans)
	return err
}

// parseNumber keeps integers as int64; a blank answer clears the field.
func parseNumber(ans string) (interface{}, error) {
	ans = strings.TrimSpace(ans)
	if ans == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(ans, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(ans, 64)
	if err != nil {
		return nil, errors.New("must be a number")
	}
	return f, nil
}

func validateDate(ans string) error {
	ans = strings.TrimSpace(ans)
	if ans == "" {
		return nil
	}
	if _, err := time.Parse(wizard.DateLayout, ans); err != nil {
		return errors.New("must be a date formatted as YYYY-MM-DD")
	}
	return nil
}

// jump reports whether the current section changed.
func (s *session) jump(ctx context.Context) (bool, error) {
	var (
		opts    []string
		targets []int
	)
	for n := 1; n <= s.ctrl.Len(); n++ {
		if s.schema.JumpPolicy() == wizard.JumpVisited && !s.ctrl.Visited(n) {
			continue
		}
		sec, _ := s.schema.Section(n)
		opts = append(opts, fmt.Sprintf("%d. %s", n, sec.Label))
		targets = append(targets, n)
	}
	idx, err := s.p.Select(ctx, selectPrompt{Message: "Go to section", Options: opts, DefaultIndex: -1})
	if err != nil {
		return false, err
	}
	if idx < 0 || idx >= len(targets) {
		return false, nil
	}
	if err = s.ctrl.JumpTo(targets[idx]); err != nil {
		return false, s.report(ctx, err)
	}
	return true, nil
}

func (s *session) attach(ctx context.Context) error {
	path, err := s.p.Input(ctx, inputPrompt{Message: "Path of the file to attach"})
	if err != nil {
		return err
	}
	if path = strings.TrimSpace(path); path == "" {
		return nil
	}
	f, err := wizard.FileFromPath(path)
	if err != nil {
		return s.report(ctx, err)
	}
	s.ctrl.AddFile(f)
	return s.p.Info(ctx, "Attached "+f.Name)
}

func (s *session) detach(ctx context.Context) error {
	files := s.ctrl.Files()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = fmt.Sprintf("%d. %s (%d bytes)", i+1, f.Name, f.Size)
	}
	idx, err := s.p.Select(ctx, selectPrompt{Message: "Remove which file?", Options: names})
	if err != nil {
		return err
	}
	s.ctrl.RemoveFile(idx)
	return nil
}
