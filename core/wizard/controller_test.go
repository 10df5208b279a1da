package wizard

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(jump JumpPolicy, submit SubmitPolicy) *Schema {
	return &Schema{
		Name:   "test-application",
		Title:  "Test Application",
		Jump:   jump,
		Submit: submit,
		Sections: []Section{
			{Label: "Personal Details", Fields: []Field{
				{Name: "firstName", Label: "First name", Kind: KindText, Required: true},
				{Name: "lastName", Label: "Last name", Kind: KindText, Required: true},
				{Name: "email", Label: "Email", Kind: KindEmail, Required: true},
				{Name: "programme", Label: "Programme", Kind: KindText, Required: true},
				{Name: "phone", Label: "Phone", Kind: KindText},
			}},
			{Label: "References", Fields: []Field{
				{Name: "references", Label: "References", Kind: KindList, Fields: []Field{
					{Name: "name", Kind: KindText},
					{Name: "relationship", Kind: KindText},
					{Name: "email", Kind: KindEmail},
					{Name: "contact", Kind: KindText},
				}},
			}},
			{Label: "Declaration", Fields: []Field{
				{Name: "declaration", Label: "I confirm", Kind: KindBool, Required: true},
			}},
		},
	}
}

type stubSubmitter struct {
	mu      sync.Mutex
	calls   []Submission
	receipt Receipt
	err     error
	block   chan struct{} // when set, Submit waits for it to be closed
}

func (s *stubSubmitter) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sub)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	return s.receipt, s.err
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newController(t *testing.T, sub Submitter, opts ...Option) *Controller {
	t.Helper()
	c, err := New(testSchema(JumpNone, SubmitFromLast), sub, opts...)
	require.NoError(t, err)
	return c
}

func fillSection1(c *Controller) {
	c.SetField("firstName", "Ada")
	c.SetField("lastName", "Lovelace")
	c.SetField("email", "ada@example.com")
	c.SetField("programme", "BSc Computing")
}

func TestNew(t *testing.T) {
	_, err := New(nil, &stubSubmitter{})
	assert.Error(t, err)

	_, err = New(testSchema(JumpNone, SubmitFromLast), nil)
	assert.Error(t, err)

	_, err = New(&Schema{Name: "empty"}, &stubSubmitter{})
	assert.Error(t, err)

	c := newController(t, &stubSubmitter{})
	assert.Equal(t, 1, c.Current())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Draft())
	assert.NotEmpty(t, c.SubmissionKey())
}

func TestController_SetField_lastWriteWins(t *testing.T) {
	c := newController(t, &stubSubmitter{})

	values := []interface{}{"a", "b", 3, true, "final"}
	for _, v := range values {
		c.SetField("phone", v)
	}
	got, ok := c.Value("phone")
	assert.True(t, ok)
	assert.Equal(t, "final", got)

	// random sequences over a few fields
	rnd := rand.New(rand.NewSource(42))
	names := []string{"firstName", "lastName", "email"}
	want := make(map[string]interface{})
	for i := 0; i < 200; i++ {
		name := names[rnd.Intn(len(names))]
		val := fmt.Sprintf("v%d", i)
		c.SetField(name, val)
		want[name] = val
	}
	for name, val := range want {
		got, _ := c.Value(name)
		assert.Equal(t, val, got, name)
	}
}

func TestController_repeatableEntries(t *testing.T) {
	template := Entry{"name": "", "relationship": "", "email": "", "contact": ""}

	t.Run("add to one existing reference", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		c.SetField("references", []Entry{{"name": "Grace", "relationship": "tutor", "email": "g@x.io", "contact": "1"}})

		c.AddEntry("references", template)

		refs := c.Entries("references")
		require.Len(t, refs, 2)
		assert.Equal(t, template, refs[1])
		assert.Equal(t, "Grace", refs[0]["name"])
	})

	t.Run("add creates the list", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		c.AddEntry("references", template)
		assert.Len(t, c.Entries("references"), 1)
	})

	t.Run("template is copied", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		tmpl := Entry{"name": ""}
		c.AddEntry("references", tmpl)
		c.AddEntry("references", tmpl)
		c.UpdateEntry("references", 0, "name", "changed")
		refs := c.Entries("references")
		assert.Equal(t, "changed", refs[0]["name"])
		assert.Equal(t, "", refs[1]["name"])
		assert.Equal(t, "", tmpl["name"])
	})

	t.Run("remove preserves order and ignores out of range", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		for i := 0; i < 4; i++ {
			c.AddEntry("references", Entry{"name": fmt.Sprintf("r%d", i)})
		}
		c.RemoveEntry("references", 1)
		c.RemoveEntry("references", -1)
		c.RemoveEntry("references", 3)
		c.RemoveEntry("missing", 0)

		var names []interface{}
		for _, e := range c.Entries("references") {
			names = append(names, e["name"])
		}
		assert.Equal(t, []interface{}{"r0", "r2", "r3"}, names)
	})

	t.Run("remove then add", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		for i := 0; i < 3; i++ {
			c.AddEntry("references", Entry{"name": fmt.Sprintf("r%d", i)})
		}
		c.RemoveEntry("references", 1)
		c.AddEntry("references", Entry{"name": "new"})

		refs := c.Entries("references")
		require.Len(t, refs, 3)
		assert.Equal(t, "r2", refs[1]["name"], "removed position is not reused")
		assert.Equal(t, "new", refs[2]["name"])
	})

	t.Run("update ignores out of range", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		c.AddEntry("references", template)
		before := c.Draft()
		c.UpdateEntry("references", 5, "name", "x")
		c.UpdateEntry("references", -1, "name", "x")
		assert.Empty(t, cmp.Diff(before, c.Draft()))
	})

	t.Run("lists set as generic JSON are normalised", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		c.SetField("references", []interface{}{map[string]interface{}{"name": "json"}})
		c.AddEntry("references", template)
		refs := c.Entries("references")
		require.Len(t, refs, 2)
		assert.Equal(t, "json", refs[0]["name"])
	})

	t.Run("entries returned are copies", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		c.AddEntry("references", Entry{"name": "a"})
		refs := c.Entries("references")
		refs[0]["name"] = "mutated"
		assert.Equal(t, "a", c.Entries("references")[0]["name"])
	})
}

func TestController_files(t *testing.T) {
	c := newController(t, &stubSubmitter{})
	c.AddFile(FileFromBytes("a.pdf", []byte("%PDF-1.4 a")))
	c.AddFile(FileFromBytes("b.txt", []byte("bbb")))
	c.AddFile(FileFromBytes("c.txt", []byte("cc")))

	c.RemoveFile(7)
	c.RemoveFile(-1)
	require.Len(t, c.Files(), 3)

	c.RemoveFile(1)
	files := c.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "a.pdf", files[0].Name)
	assert.Equal(t, "c.txt", files[1].Name)
	assert.Equal(t, int64(2), files[1].Size)
}

func TestController_ValidateSection(t *testing.T) {
	c := newController(t, &stubSubmitter{})

	assert.False(t, c.ValidateSection(1))
	assert.Equal(t, []string{"firstName", "lastName", "email", "programme"}, c.MissingFields(1))
	assert.True(t, c.ValidateSection(2), "no required fields")
	assert.True(t, c.ValidateSection(0), "out of range")
	assert.True(t, c.ValidateSection(99), "out of range")

	c.SetField("firstName", "   ")
	assert.Contains(t, c.MissingFields(1), "firstName", "blank strings are empty")

	fillSection1(c)
	assert.True(t, c.ValidateSection(1))

	c.SetField("declaration", false)
	assert.False(t, c.ValidateSection(3))
	c.SetField("declaration", true)
	assert.True(t, c.ValidateSection(3))

	// pure: validation does not touch the draft
	before := c.Draft()
	c.ValidateSection(1)
	c.MissingFields(3)
	assert.Empty(t, cmp.Diff(before, c.Draft()))
}

func TestController_Next(t *testing.T) {
	t.Run("empty draft is blocked", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		err := c.Next()
		require.Error(t, err)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, 1, vErr.Section)
		assert.Equal(t, "Personal Details", vErr.Label)
		assert.Equal(t, []string{"firstName", "lastName", "email", "programme"}, vErr.Missing)
		assert.Equal(t, 1, c.Current())
	})

	t.Run("filled section advances", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		fillSection1(c)
		require.NoError(t, c.Next())
		assert.Equal(t, 2, c.Current())
		assert.True(t, c.Visited(2))
	})

	t.Run("any single missing field blocks", func(t *testing.T) {
		for _, name := range []string{"firstName", "lastName", "email", "programme"} {
			c := newController(t, &stubSubmitter{})
			fillSection1(c)
			c.SetField(name, "")
			assert.Error(t, c.Next(), name)
			assert.Equal(t, 1, c.Current(), name)
		}
	})

	t.Run("last section", func(t *testing.T) {
		c := newController(t, &stubSubmitter{})
		fillSection1(c)
		c.SetField("declaration", true)
		require.NoError(t, c.Next())
		require.NoError(t, c.Next())
		assert.Equal(t, ErrLastSection, c.Next())
		assert.Equal(t, 3, c.Current())
	})
}

func TestController_Previous(t *testing.T) {
	c := newController(t, &stubSubmitter{})
	assert.False(t, c.Previous())
	assert.Equal(t, 1, c.Current())

	fillSection1(c)
	require.NoError(t, c.Next())
	c.SetField("firstName", "") // going back never validates
	assert.True(t, c.Previous())
	assert.Equal(t, 1, c.Current())
	assert.False(t, c.Previous())
	assert.Equal(t, 1, c.Current())
}

func TestController_navigationStaysInRange(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for run := 0; run < 20; run++ {
		c, err := New(testSchema(JumpAny, SubmitFromLast), &stubSubmitter{})
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			switch rnd.Intn(5) {
			case 0:
				fillSection1(c)
			case 1:
				c.SetField("firstName", "")
			case 2:
				c.SetField("declaration", rnd.Intn(2) == 0)
			case 3:
				_ = c.Next()
			default:
				c.Previous()
			}
			cur := c.Current()
			require.GreaterOrEqual(t, cur, 1)
			require.LessOrEqual(t, cur, c.Len())
		}
	}
}

func TestController_JumpTo(t *testing.T) {
	tests := []struct {
		name    string
		policy  JumpPolicy
		visit   bool // advance to section 2 first
		target  int
		wantErr error
		wantCur int
	}{
		{name: "none: other section", policy: JumpNone, target: 3, wantErr: ErrJumpNotAllowed, wantCur: 1},
		{name: "none: current section", policy: JumpNone, target: 1, wantCur: 1},
		{name: "visited: unvisited", policy: JumpVisited, target: 3, wantErr: ErrJumpNotAllowed, wantCur: 1},
		{name: "visited: back to visited", policy: JumpVisited, visit: true, target: 1, wantCur: 1},
		{name: "visited: forward to visited", policy: JumpVisited, visit: true, target: 2, wantCur: 2},
		{name: "any: unvisited without validation", policy: JumpAny, target: 3, wantCur: 3},
		{name: "any: out of range low", policy: JumpAny, target: 0, wantErr: ErrSectionOutOfRange, wantCur: 1},
		{name: "any: out of range high", policy: JumpAny, target: 4, wantErr: ErrSectionOutOfRange, wantCur: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(testSchema(tt.policy, SubmitFromLast), &stubSubmitter{})
			require.NoError(t, err)
			if tt.visit {
				fillSection1(c)
				require.NoError(t, c.Next())
				require.True(t, c.Previous())
			}
			if tt.target == 2 && tt.visit {
				// make sure jumping does not depend on validation
				c.SetField("firstName", "")
			}
			assert.Equal(t, tt.wantErr, c.JumpTo(tt.target))
			assert.Equal(t, tt.wantCur, c.Current())
		})
	}
}

func readyToSubmit(t *testing.T, c *Controller) {
	t.Helper()
	fillSection1(c)
	c.SetField("declaration", true)
	for c.Current() < c.Len() {
		require.NoError(t, c.Next())
	}
}

func TestController_Submit(t *testing.T) {
	t.Run("success discards the draft and calls back", func(t *testing.T) {
		sub := &stubSubmitter{receipt: Receipt{ID: "app-1"}}
		var completed []Receipt
		c := newController(t, sub, OnComplete(func(r Receipt) { completed = append(completed, r) }))
		readyToSubmit(t, c)
		c.AddEntry("references", Entry{"name": "Grace"})
		c.AddFile(FileFromBytes("cv.pdf", []byte("cv")))
		key := c.SubmissionKey()
		wantDraft := c.Draft()

		receipt, err := c.Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "app-1", receipt.ID)
		assert.Equal(t, StateSucceeded, c.State())
		assert.Equal(t, receipt, c.Receipt())
		assert.Equal(t, []Receipt{receipt}, completed)

		require.Equal(t, 1, sub.callCount())
		got := sub.calls[0]
		assert.Equal(t, "test-application", got.Form)
		assert.Equal(t, key, got.Key)
		assert.Empty(t, cmp.Diff(wantDraft, got.Draft))
		require.Len(t, got.Files, 1)
		assert.Equal(t, "cv.pdf", got.Files[0].Name)

		assert.Empty(t, c.Draft())
		assert.Empty(t, c.Files())
		assert.Equal(t, 1, c.Current())
		assert.NotEqual(t, key, c.SubmissionKey())
	})

	t.Run("strict policy requires the last section", func(t *testing.T) {
		sub := &stubSubmitter{}
		c := newController(t, sub)
		fillSection1(c)
		_, err := c.Submit(context.Background())
		assert.Equal(t, ErrNotLastSection, err)
		assert.False(t, c.CanSubmit())
		assert.Equal(t, StateIdle, c.State())
		assert.Zero(t, sub.callCount())
	})

	t.Run("permissive policy validates current and final sections", func(t *testing.T) {
		sub := &stubSubmitter{receipt: Receipt{ID: "x"}}
		c, err := New(testSchema(JumpNone, SubmitFromAny), sub)
		require.NoError(t, err)
		assert.True(t, c.CanSubmit())

		_, err = c.Submit(context.Background())
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, 1, vErr.Section)

		fillSection1(c)
		_, err = c.Submit(context.Background())
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, 3, vErr.Section)
		assert.Equal(t, StateIdle, c.State())

		c.SetField("declaration", true)
		_, err = c.Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sub.callCount())
	})

	t.Run("failure keeps the draft intact", func(t *testing.T) {
		sub := &stubSubmitter{err: errors.New("connection refused")}
		c := newController(t, sub)
		readyToSubmit(t, c)
		c.AddEntry("references", Entry{"name": "Grace", "when": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)})
		c.AddFile(FileFromBytes("cv.pdf", []byte("cv")))
		before := c.Draft()
		key := c.SubmissionKey()

		_, err := c.Submit(context.Background())
		require.Error(t, err)
		var subErr *SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.Equal(t, "connection refused", errors.Cause(err).Error())

		assert.Equal(t, StateFailed, c.State())
		assert.Equal(t, err, c.Err())
		assert.Empty(t, cmp.Diff(before, c.Draft()))
		assert.Len(t, c.Files(), 1)
		assert.Equal(t, 3, c.Current())

		// manual retry reuses the idempotency key
		sub.err = nil
		sub.receipt = Receipt{ID: "app-2", Duplicate: true}
		receipt, err := c.Submit(context.Background())
		require.NoError(t, err)
		assert.True(t, receipt.Duplicate)
		require.Equal(t, 2, sub.callCount())
		assert.Equal(t, key, sub.calls[0].Key)
		assert.Equal(t, key, sub.calls[1].Key)
		assert.Nil(t, c.Err())
	})

	t.Run("concurrent submit is rejected", func(t *testing.T) {
		sub := &stubSubmitter{receipt: Receipt{ID: "app-3"}, block: make(chan struct{})}
		c := newController(t, sub)
		readyToSubmit(t, c)

		done := make(chan error, 1)
		go func() {
			_, err := c.Submit(context.Background())
			done <- err
		}()
		require.Eventually(t, func() bool { return c.State() == StateSubmitting }, time.Second, time.Millisecond)

		_, err := c.Submit(context.Background())
		assert.Equal(t, ErrSubmitInFlight, err)
		assert.False(t, c.CanSubmit())

		close(sub.block)
		require.NoError(t, <-done)
		assert.Equal(t, 1, sub.callCount())
		assert.Equal(t, StateSucceeded, c.State())
	})

	t.Run("timeout fails the submission", func(t *testing.T) {
		sub := &stubSubmitter{block: make(chan struct{})}
		defer close(sub.block)
		c := newController(t, sub, WithTimeout(20*time.Millisecond))
		readyToSubmit(t, c)
		before := c.Draft()

		_, err := c.Submit(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, StateFailed, c.State())
		assert.Empty(t, cmp.Diff(before, c.Draft()))
	})

	t.Run("timeout applies to submitters ignoring the context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		stubborn := SubmitterFunc(func(context.Context, Submission) (Receipt, error) {
			<-release
			return Receipt{ID: "late"}, nil
		})
		c := newController(t, stubborn, WithTimeout(20*time.Millisecond))
		readyToSubmit(t, c)

		_, err := c.Submit(context.Background())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, StateFailed, c.State())
	})

	t.Run("cancel aborts the in-flight submission", func(t *testing.T) {
		sub := &stubSubmitter{block: make(chan struct{})}
		defer close(sub.block)
		c := newController(t, sub, WithTimeout(0))
		readyToSubmit(t, c)

		done := make(chan error, 1)
		go func() {
			_, err := c.Submit(context.Background())
			done <- err
		}()
		require.Eventually(t, func() bool { return c.State() == StateSubmitting }, time.Second, time.Millisecond)
		c.Cancel()

		err := <-done
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, StateFailed, c.State())
		c.Cancel() // no-op once settled
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "submitting", StateSubmitting.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed", StateFailed.String())
}
