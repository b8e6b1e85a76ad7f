package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/media"
	"scribeit/internal/models"
)

const (
	fileFailureMessage    = "An error occurred while uploading your file. Please try again."
	youtubeFailureMessage = "An error occurred while processing your YouTube video. Please try again."
)

// Submitter is the part of the backend client the controller drives.
type Submitter interface {
	UploadMedia(ctx context.Context, cred backend.Credential, m backend.MediaUpload) (string, error)
	SubmitYouTube(ctx context.Context, cred backend.Credential, videoURL, title string) (string, error)
}

// Snapshot is the observable state of one job.
type Snapshot struct {
	JobID        string    `json:"job_id"`
	Owner        string    `json:"-"`
	Kind         Kind      `json:"kind"`
	Phase        Phase     `json:"phase"`
	Progress     int       `json:"progress"`
	Title        string    `json:"title"`
	FileName     string    `json:"file_name,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ResultID     string    `json:"result_id,omitempty"`
	RedirectPath string    `json:"redirect_path,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SummaryPath is where a finished job sends the user.
func SummaryPath(resultID string) string {
	return "/summary/" + resultID
}

// Controller drives one submission through
// validating -> uploading -> processing -> succeeded | failed.
// The YouTube flow skips uploading.
type Controller struct {
	mu        sync.Mutex
	snap      Snapshot
	subs      map[int]chan Snapshot
	nextSub   int
	abandoned bool

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	submitter Submitter
	cred      backend.Credential
	spool     *models.SpooledMedia
	onChange  func(Snapshot)
}

func newController(jobID, owner string, kind Kind, submitter Submitter, cred backend.Credential) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		snap: Snapshot{
			JobID:     jobID,
			Owner:     owner,
			Kind:      kind,
			Phase:     PhaseValidating,
			UpdatedAt: time.Now().UTC(),
		},
		subs:      make(map[int]chan Snapshot),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		submitter: submitter,
		cred:      cred,
	}
}

// Owner implements worker.Task.
func (c *Controller) Owner() string {
	return c.snap.Owner
}

// JobID returns the job identifier.
func (c *Controller) JobID() string {
	return c.snap.JobID
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) setOnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Done is closed once the job reaches a terminal phase or is abandoned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// validateFile checks the spooled file and title. On failure the job returns to idle.
func (c *Controller) validateFile(spool *models.SpooledMedia, title string) error {
	c.mu.Lock()
	c.snap.Title = title
	if spool != nil {
		c.spool = spool
		c.snap.FileName = spool.FileName
	}
	c.mu.Unlock()

	var err error
	switch {
	case spool == nil:
		err = media.NewValidationError(media.MissingFile)
	default:
		err = media.Validate(media.Descriptor{FileName: spool.FileName, MimeType: spool.MimeType, Size: spool.Size})
		if err == nil && strings.TrimSpace(title) == "" {
			err = media.NewValidationError(media.MissingTitle)
		}
	}
	if err != nil {
		c.rejectLocally(err)
		return err
	}
	c.transition(func(s *Snapshot) {
		s.Phase = PhaseUploading
		s.Progress = 0
	})
	return nil
}

// validateYouTube checks the URL form. On failure the job returns to idle.
func (c *Controller) validateYouTube(videoURL, title string) error {
	c.mu.Lock()
	c.snap.Title = title
	c.snap.SourceURL = strings.TrimSpace(videoURL)
	c.mu.Unlock()

	if err := media.ValidateYouTube(videoURL, title); err != nil {
		c.rejectLocally(err)
		return err
	}
	c.transition(func(s *Snapshot) { s.Phase = PhaseProcessing })
	return nil
}

func (c *Controller) rejectLocally(err error) {
	c.transition(func(s *Snapshot) {
		s.Phase = PhaseIdle
		s.Error = err.Error()
		s.ErrorKind = "validation"
		if ve, ok := media.AsValidationError(err); ok {
			s.ErrorKind = string(ve.Kind)
		}
	})
	c.removeSpool()
}

// Run implements worker.Task.
func (c *Controller) Run() {
	defer c.removeSpool()
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Errorf("upload job panicked: %v", r))
		}
	}()
	if c.ctx.Err() != nil {
		return
	}
	snap := c.Snapshot()
	var (
		resultID string
		err      error
	)
	switch snap.Kind {
	case KindFile:
		resultID, err = c.transfer()
	case KindYouTube:
		resultID, err = c.submitter.SubmitYouTube(c.ctx, c.cred, snap.SourceURL, strings.TrimSpace(snap.Title))
	default:
		err = fmt.Errorf("unknown job kind %q", snap.Kind)
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.succeed(resultID)
}

func (c *Controller) transfer() (string, error) {
	c.mu.Lock()
	spool := c.spool
	title := strings.TrimSpace(c.snap.Title)
	c.mu.Unlock()
	if spool == nil {
		return "", media.NewValidationError(media.MissingFile)
	}
	f, err := os.Open(spool.StoredPath)
	if err != nil {
		return "", &backend.TransportError{Op: "open spooled media", Err: err}
	}
	defer f.Close()

	body := newProgressReader(f, spool.Size, c.setProgress, c.transferComplete)
	return c.submitter.UploadMedia(c.ctx, c.cred, backend.MediaUpload{
		FileName: spool.FileName,
		MimeType: spool.MimeType,
		Title:    title,
		Body:     body,
	})
}

// setProgress only ever raises the percentage, and only while uploading.
func (c *Controller) setProgress(percent int) {
	if percent > 100 {
		percent = 100
	}
	c.transitionIf(func(s *Snapshot) bool {
		return s.Phase == PhaseUploading && percent > s.Progress
	}, func(s *Snapshot) { s.Progress = percent })
}

// transferComplete pins progress to 100 and moves on to waiting for the server.
func (c *Controller) transferComplete() {
	c.transitionIf(func(s *Snapshot) bool {
		return s.Phase == PhaseUploading
	}, func(s *Snapshot) {
		s.Progress = 100
		s.Phase = PhaseProcessing
	})
}

func (c *Controller) succeed(resultID string) {
	if c.Snapshot().Kind == KindFile {
		c.transferComplete()
	}
	c.transitionIf(func(s *Snapshot) bool { return s.Phase.InFlight() }, func(s *Snapshot) {
		s.Phase = PhaseSucceeded
		s.ResultID = resultID
		s.RedirectPath = SummaryPath(resultID)
	})
	c.finish()
}

func (c *Controller) fail(err error) {
	if c.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		c.finish()
		return
	}
	kind := c.Snapshot().Kind
	msg, errKind := failureMessage(kind, err)
	logger.Warn(context.Background(), "upload job failed", logger.Fields{
		"job_id": c.JobID(),
		"kind":   string(kind),
		"error":  err.Error(),
	})
	c.transitionIf(func(s *Snapshot) bool { return s.Phase.InFlight() }, func(s *Snapshot) {
		s.Phase = PhaseFailed
		s.Error = msg
		s.ErrorKind = errKind
	})
	c.finish()
}

// failureMessage renders err as one line for the form.
func failureMessage(kind Kind, err error) (string, string) {
	generic := fileFailureMessage
	if kind == KindYouTube {
		generic = youtubeFailureMessage
	}
	if ve, ok := media.AsValidationError(err); ok {
		return ve.Error(), string(ve.Kind)
	}
	var se *backend.ServerError
	if errors.As(err, &se) {
		if se.Detail != "" && len(se.Detail) < 200 && !strings.ContainsAny(se.Detail, "\n{") {
			return se.Detail, "server"
		}
		return generic, "server"
	}
	return generic, "transport"
}

// Cancel abandons the job: no more updates are emitted, the request is aborted
// and the spooled file is removed.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	c.abandoned = true
	subs := c.subs
	c.subs = make(map[int]chan Snapshot)
	c.mu.Unlock()

	c.cancel()
	for _, ch := range subs {
		close(ch)
	}
	c.removeSpool()
	c.closeDone()
}

func (c *Controller) finish() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[int]chan Snapshot)
	c.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
	c.cancel()
	c.closeDone()
}

func (c *Controller) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) removeSpool() {
	c.mu.Lock()
	spool := c.spool
	c.mu.Unlock()
	if spool == nil || spool.StoredPath == "" {
		return
	}
	if err := os.Remove(spool.StoredPath); err != nil && !os.IsNotExist(err) {
		logger.Warn(context.Background(), "remove spooled media failed", logger.Fields{
			"job_id": c.JobID(),
			"path":   spool.StoredPath,
			"error":  err.Error(),
		})
	}
}

// Subscribe returns a channel that always holds the latest snapshot. It is
// closed when the job ends or is abandoned.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	ch <- c.snap
	if c.abandoned || c.snap.Phase.IsTerminal() || c.snap.Phase == PhaseIdle {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
}

func (c *Controller) transition(update func(*Snapshot)) {
	c.transitionIf(func(*Snapshot) bool { return true }, update)
}

// transitionIf applies update when cond holds and publishes the result.
// Nothing is published after the job was abandoned.
func (c *Controller) transitionIf(cond func(*Snapshot) bool, update func(*Snapshot)) {
	c.mu.Lock()
	if c.abandoned || !cond(&c.snap) {
		c.mu.Unlock()
		return
	}
	update(&c.snap)
	c.snap.UpdatedAt = time.Now().UTC()
	snap := c.snap
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	hook := c.onChange
	c.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
}
