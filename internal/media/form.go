package media

import (
	"strings"
	"sync"
)

// Form holds the upload form state for one view: the current selection,
// the title, and the last validation error. Picker and drop share selectFile.
type Form struct {
	mu        sync.Mutex
	selection *Selection
	title     string
	lastErr   *ValidationError
	busy      bool
}

// NewForm starts an empty form with an optional pre-filled title.
func NewForm(title string) *Form {
	return &Form{title: title}
}

// FormState is a read-only view of the form.
type FormState struct {
	Selection        *Selection `json:"selection,omitempty"`
	Title            string     `json:"title"`
	Error            string     `json:"error,omitempty"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	CanSubmit        bool       `json:"can_submit"`
	EstimatedMinutes int        `json:"estimated_minutes"`
}

// Pick handles a file chosen in the file picker.
func (f *Form) Pick(d Descriptor) error {
	return f.selectFile(d)
}

// Drop handles a file dropped on the drop zone.
func (f *Form) Drop(d Descriptor) error {
	return f.selectFile(d)
}

// selectFile validates d; a rejected file clears the selection and leaves the title alone.
func (f *Form) selectFile(d Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := Validate(d); err != nil {
		f.selection = nil
		f.lastErr, _ = AsValidationError(err)
		return err
	}
	f.lastErr = nil
	f.selection = &Selection{
		FileName: d.FileName,
		MimeType: NormalizeMimeType(d.MimeType),
		Size:     d.Size,
	}
	if f.title == "" {
		f.title = DeriveTitle(d.FileName)
	}
	return nil
}

// SetTitle replaces the user-entered title.
func (f *Form) SetTitle(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

// SetBusy marks an upload as in progress, which disables submission.
func (f *Form) SetBusy(busy bool) {
	f.mu.Lock()
	f.busy = busy
	f.mu.Unlock()
}

// Check returns the error that would block submission right now.
func (f *Form) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection == nil {
		return NewValidationError(MissingFile)
	}
	if strings.TrimSpace(f.title) == "" {
		return NewValidationError(MissingTitle)
	}
	return nil
}

// Selection returns a copy of the accepted file, if any.
func (f *Form) Selection() (Selection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selection == nil {
		return Selection{}, false
	}
	return *f.selection, true
}

// Title returns the current title.
func (f *Form) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := FormState{Title: f.title}
	if f.selection != nil {
		sel := *f.selection
		st.Selection = &sel
		st.EstimatedMinutes = EstimateMinutes(sel.Size)
	}
	if f.lastErr != nil {
		st.Error = f.lastErr.Error()
		st.ErrorKind = f.lastErr.Kind
	}
	st.CanSubmit = f.selection != nil && strings.TrimSpace(f.title) != "" && !f.busy
	return st
}
