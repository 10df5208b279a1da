// Package wizard drives an operator through the ordered sections of a
// multi-step intake form, accumulating a single draft record and submitting
// it in one request at the end.
package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultSubmitTimeout bounds a submission round trip when no timeout is configured.
const DefaultSubmitTimeout = 30 * time.Second

var newSubmissionKey = func() string { return uuid.New().String() } // mockable

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type (
	// Submission is the whole accumulated record handed to the Submitter.
	Submission struct {
		Form  string
		Key   string // idempotency key, shared by every attempt of the same draft
		Draft Draft
		Files []File
	}

	// Receipt acknowledges a stored submission.
	Receipt struct {
		ID        string
		Duplicate bool // the server had already stored a submission with the same key
	}

	// Submitter performs the single network call of a submission.
	Submitter interface {
		Submit(ctx context.Context, sub Submission) (Receipt, error)
	}

	// SubmitterFunc adapts a function to the Submitter interface.
	SubmitterFunc func(ctx context.Context, sub Submission) (Receipt, error)

	Option func(*Controller)
)

func (fn SubmitterFunc) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	return fn(ctx, sub)
}

// WithTimeout bounds every submission round trip; d <= 0 disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// OnComplete registers a callback invoked after a successful submission.
func OnComplete(fn func(Receipt)) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// Controller owns one form session: the draft, the current section and the
// attached files. It is safe for concurrent use; the lock is never held while
// a submission is in flight.
type Controller struct {
	schema     *Schema
	submitter  Submitter
	timeout    time.Duration
	onComplete func(Receipt)

	mu      sync.Mutex
	current int
	visited map[int]bool
	draft   Draft
	files   []File
	key     string
	state   State
	err     error
	receipt Receipt
	cancel  context.CancelFunc
}

// New returns a Controller positioned on section 1 with an empty draft.
func New(schema *Schema, submitter Submitter, opts ...Option) (*Controller, error) {
	if schema == nil {
		return nil, errors.New("wizard: nil schema")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if submitter == nil {
		return nil, errors.New("wizard: nil submitter")
	}
	c := &Controller{
		schema:    schema,
		submitter: submitter,
		timeout:   DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c, nil
}

func (c *Controller) reset() {
	c.current = 1
	c.visited = map[int]bool{1: true}
	c.draft = make(Draft)
	c.files = nil
	c.key = newSubmissionKey()
}

func (c *Controller) Schema() *Schema { return c.schema }

// Len returns the total number of sections N.
func (c *Controller) Len() int { return c.schema.Len() }

// Current returns the 1-indexed current section.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Section returns the current section definition.
func (c *Controller) Section() Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	sec, _ := c.schema.Section(c.current)
	return sec
}

// Visited reports whether section n has been shown during this session.
func (c *Controller) Visited(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visited[n]
}

// SubmissionKey returns the idempotency key of the current draft.
func (c *Controller) SubmissionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Draft returns a copy of the draft record.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Value returns the draft value of a field.
func (c *Controller) Value(name string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.draft[name]
	return cloneValue(v), ok
}

// SetField merges value into the draft, overwriting any previous value.
func (c *Controller) SetField(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft[name] = value
}

// entries returns the list stored at draft[list], normalising lists set through SetField.
func (c *Controller) entries(list string) []Entry {
	switch val := c.draft[list].(type) {
	case []Entry:
		return val
	case []map[string]interface{}:
		entries := make([]Entry, len(val))
		for i, e := range val {
			entries[i] = Entry(e)
		}
		c.draft[list] = entries
		return entries
	case []interface{}:
		entries := make([]Entry, 0, len(val))
		for _, e := range val {
			switch m := e.(type) {
			case Entry:
				entries = append(entries, m)
			case map[string]interface{}:
				entries = append(entries, Entry(m))
			default:
				entries = append(entries, Entry{})
			}
		}
		c.draft[list] = entries
		return entries
	default:
		return nil
	}
}

// Entries returns a copy of the entries of a repeatable list.
func (c *Controller) Entries(list string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries, ok := cloneValue(c.entries(list)).([]Entry); ok {
		return entries
	}
	return nil
}

// AddEntry appends a copy of template to the list.
func (c *Controller) AddEntry(list string, template Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.entries(list)
	next := make([]Entry, len(entries), len(entries)+1)
	copy(next, entries)
	c.draft[list] = append(next, template.Clone())
}

// RemoveEntry removes the entry at index; out-of-range indexes are ignored.
func (c *Controller) RemoveEntry(list string, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.entries(list)
	if index < 0 || index >= len(entries) {
		return
	}
	next := make([]Entry, 0, len(entries)-1)
	next = append(next, entries[:index]...)
	next = append(next, entries[index+1:]...)
	c.draft[list] = next
}

// UpdateEntry sets one field of the entry at index; out-of-range indexes are ignored.
func (c *Controller) UpdateEntry(list string, index int, field string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.entries(list)
	if index < 0 || index >= len(entries) {
		return
	}
	if entries[index] == nil {
		entries[index] = make(Entry)
	}
	entries[index][field] = value
}

// AddFile appends a file reference.
func (c *Controller) AddFile(f File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
}

// RemoveFile removes the file at index; out-of-range indexes are ignored.
func (c *Controller) RemoveFile(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.files) {
		return
	}
	next := make([]File, 0, len(c.files)-1)
	next = append(next, c.files[:index]...)
	c.files = append(next, c.files[index+1:]...)
}

// Files returns the attached file references, in order.
func (c *Controller) Files() []File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]File(nil), c.files...)
}

// ValidateSection reports whether section n's required fields are all filled in.
func (c *Controller) ValidateSection(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema.ValidateSection(n, c.draft)
}

// MissingFields lists section n's required fields that are still empty.
func (c *Controller) MissingFields(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema.MissingFields(n, c.draft)
}

func (c *Controller) validate(n int) error {
	if missing := c.schema.MissingFields(n, c.draft); len(missing) > 0 {
		sec, _ := c.schema.Section(n)
		return &ValidationError{Section: n, Label: sec.Label, Missing: missing}
	}
	return nil
}

// Next advances to the following section if the current one validates.
// On failure the current section is unchanged.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validate(c.current); err != nil {
		return err
	}
	if c.current >= c.schema.Len() {
		return ErrLastSection
	}
	c.current++
	c.visited[c.current] = true
	return nil
}

// Previous goes back one section without validation; it reports whether it moved.
func (c *Controller) Previous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current <= 1 {
		return false
	}
	c.current--
	return true
}

// JumpTo navigates directly to section n as allowed by the schema's JumpPolicy.
// Jumps never validate.
func (c *Controller) JumpTo(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > c.schema.Len() {
		return ErrSectionOutOfRange
	}
	switch c.schema.JumpPolicy() {
	case JumpAny:
	case JumpVisited:
		if !c.visited[n] {
			return ErrJumpNotAllowed
		}
	default:
		if n != c.current {
			return ErrJumpNotAllowed
		}
	}
	c.current = n
	c.visited[n] = true
	return nil
}

// CanSubmit reports whether Submit may be attempted from the current section.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmit() == nil
}

func (c *Controller) canSubmit() error {
	if c.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	if c.schema.SubmitPolicy() == SubmitFromLast && c.current != c.schema.Len() {
		return ErrNotLastSection
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed submission.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Receipt returns the receipt of the last successful submission.
func (c *Controller) Receipt() Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

// Submit validates the current and final sections, then sends the whole draft
// and every attached file in one call. While it is in flight any other call
// to Submit fails with ErrSubmitInFlight. On failure the draft and files are
// kept for a manual retry; on success they are discarded.
func (c *Controller) Submit(ctx context.Context) (Receipt, error) {
	c.mu.Lock()
	if err := c.canSubmit(); err != nil {
		c.mu.Unlock()
		return Receipt{}, err
	}
	for _, n := range []int{c.current, c.schema.Len()} {
		if err := c.validate(n); err != nil {
			c.mu.Unlock()
			return Receipt{}, err
		}
	}

	sub := Submission{
		Form:  c.schema.Name,
		Key:   c.key,
		Draft: c.draft.Clone(),
		Files: append([]File(nil), c.files...),
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	c.cancel = cancel
	c.state = StateSubmitting
	c.err = nil
	c.mu.Unlock()

	receipt, err := c.await(ctx, sub)
	cancel()

	c.mu.Lock()
	c.cancel = nil
	if err != nil {
		subErr := &SubmissionError{Err: err}
		c.state = StateFailed
		c.err = subErr
		c.mu.Unlock()
		return Receipt{}, subErr
	}
	c.state = StateSucceeded
	c.receipt = receipt
	c.reset()
	onComplete := c.onComplete
	c.mu.Unlock()

	if onComplete != nil {
		onComplete(receipt)
	}
	return receipt, nil
}

// await runs the submitter but gives up as soon as ctx is done, even if the
// submitter does not honour ctx itself.
func (c *Controller) await(ctx context.Context, sub Submission) (Receipt, error) {
	type result struct {
		receipt Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		receipt, err := c.submitter.Submit(ctx, sub)
		done <- result{receipt, err}
	}()
	select {
	case res := <-done:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, errors.Wrap(ctx.Err(), "waiting for the submission")
	}
}

// Cancel aborts the in-flight submission, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
