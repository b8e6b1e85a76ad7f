package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/models"
	"scribeit/internal/redis"
	"scribeit/internal/worker"
)

var (
	// ErrInFlight is returned when the owner already has a submission running.
	ErrInFlight = errors.New("an upload is already in progress")
	// ErrJobNotFound is returned for unknown jobs and jobs of other owners.
	ErrJobNotFound = errors.New("upload job not found")
	// ErrBusy is returned when no worker slot is free for the job.
	ErrBusy = errors.New("upload queue is full, try again later")
)

const defaultRetention = 15 * time.Minute

// Scheduler runs jobs in the background.
type Scheduler interface {
	Submit(task worker.Task) error
	CancelOwner(owner string)
}

// Manager owns the upload jobs of every session. Each owner has at most one
// job in flight.
type Manager struct {
	submitter Submitter
	scheduler Scheduler
	mirror    *stateMirror
	retention time.Duration

	mu      sync.Mutex
	jobs    map[string]*Controller
	current map[string]string // owner -> latest job id
}

// NewManager wires the manager. cache may be nil or disabled.
func NewManager(submitter Submitter, scheduler Scheduler, cache *redis.Client) *Manager {
	return &Manager{
		submitter: submitter,
		scheduler: scheduler,
		mirror:    newStateMirror(cache),
		retention: defaultRetention,
		jobs:      make(map[string]*Controller),
		current:   make(map[string]string),
	}
}

// Start listens for abandon requests relayed by other instances until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	return m.mirror.startListener(ctx, func(msg abandonMessage) {
		m.mu.Lock()
		c, ok := m.jobs[msg.JobID]
		m.mu.Unlock()
		if !ok || c.Owner() != msg.Owner {
			return
		}
		logger.Info(ctx, "abandon relayed from peer", logger.Fields{"job_id": msg.JobID})
		m.forget(c)
		c.Cancel()
	})
}

// SubmitFile validates the spooled file and queues the transfer. A validation
// failure returns the idle snapshot together with the error.
func (m *Manager) SubmitFile(owner string, cred backend.Credential, title string, spool *models.SpooledMedia) (Snapshot, error) {
	c := newController(uuid.NewString(), owner, KindFile, m.submitter, cred)
	return m.submit(c, func() error {
		return c.validateFile(spool, title)
	}, func() {
		if spool != nil {
			c.spool = spool
			c.removeSpool()
		}
	})
}

// SubmitYouTube validates the link and queues the submission.
func (m *Manager) SubmitYouTube(owner string, cred backend.Credential, videoURL, title string) (Snapshot, error) {
	c := newController(uuid.NewString(), owner, KindYouTube, m.submitter, cred)
	return m.submit(c, func() error {
		return c.validateYouTube(videoURL, title)
	}, nil)
}

func (m *Manager) submit(c *Controller, validate func() error, discard func()) (Snapshot, error) {
	owner := c.Owner()

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.currentLocked(owner); ok && prev.Snapshot().Phase.InFlight() {
		if discard != nil {
			discard()
		}
		return prev.Snapshot(), ErrInFlight
	}
	if err := validate(); err != nil {
		return c.Snapshot(), err
	}

	m.jobs[c.JobID()] = c
	m.current[owner] = c.JobID()
	c.setOnChange(m.observe)
	m.mirror.store(c.Snapshot())

	if err := m.scheduler.Submit(c); err != nil {
		delete(m.jobs, c.JobID())
		delete(m.current, owner)
		m.mirror.remove(c.JobID())
		c.Cancel()
		if errors.Is(err, worker.ErrDispatcherBusy) {
			return Snapshot{}, ErrBusy
		}
		return Snapshot{}, fmt.Errorf("schedule upload: %w", err)
	}
	logger.Info(context.Background(), "upload job queued", logger.Fields{
		"job_id": c.JobID(),
		"kind":   string(c.Snapshot().Kind),
	})
	return c.Snapshot(), nil
}

func (m *Manager) currentLocked(owner string) (*Controller, bool) {
	id, ok := m.current[owner]
	if !ok {
		return nil, false
	}
	c, ok := m.jobs[id]
	return c, ok
}

// observe mirrors every state change and schedules finished jobs for removal.
func (m *Manager) observe(snap Snapshot) {
	m.mirror.store(snap)
	if !snap.Phase.IsTerminal() {
		return
	}
	time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.jobs[snap.JobID]; ok && c.Snapshot().Phase.IsTerminal() {
			m.removeLocked(c)
		}
	})
}

// Get returns the job snapshot. Jobs running on another instance are read
// from the mirror.
func (m *Manager) Get(owner, jobID string) (Snapshot, error) {
	m.mu.Lock()
	c, ok := m.jobs[jobID]
	m.mu.Unlock()
	if ok {
		if c.Owner() != owner {
			return Snapshot{}, ErrJobNotFound
		}
		return c.Snapshot(), nil
	}
	if snap, ok := m.mirror.load(jobID); ok && snap.Owner == owner {
		return snap, nil
	}
	return Snapshot{}, ErrJobNotFound
}

// Current returns the owner's latest job, if any.
func (m *Manager) Current(owner string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.currentLocked(owner)
	if !ok {
		return Snapshot{}, false
	}
	return c.Snapshot(), true
}

// Subscribe streams snapshots of a local job. For a job held only in the
// mirror the channel carries the mirrored snapshot and is closed.
func (m *Manager) Subscribe(owner, jobID string) (<-chan Snapshot, func(), error) {
	m.mu.Lock()
	c, ok := m.jobs[jobID]
	m.mu.Unlock()
	if ok {
		if c.Owner() != owner {
			return nil, nil, ErrJobNotFound
		}
		ch, stop := c.Subscribe()
		return ch, stop, nil
	}
	snap, err := m.Get(owner, jobID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Snapshot, 1)
	ch <- snap
	close(ch)
	return ch, func() {}, nil
}

// Abandon cancels the job and forgets it. Late results are discarded.
func (m *Manager) Abandon(owner, jobID string) error {
	m.mu.Lock()
	c, ok := m.jobs[jobID]
	if ok && c.Owner() != owner {
		m.mu.Unlock()
		return ErrJobNotFound
	}
	if ok {
		m.removeLocked(c)
	}
	m.mu.Unlock()

	if ok {
		c.Cancel()
		logger.Info(context.Background(), "upload job abandoned", logger.Fields{"job_id": jobID})
		return nil
	}
	snap, found := m.mirror.load(jobID)
	if !found || snap.Owner != owner {
		return ErrJobNotFound
	}
	m.mirror.publishAbandon(abandonMessage{Owner: owner, JobID: jobID})
	m.mirror.remove(jobID)
	return nil
}

// AbandonOwner cancels everything the owner has queued or running.
func (m *Manager) AbandonOwner(owner string) {
	m.scheduler.CancelOwner(owner)
	m.mu.Lock()
	var victims []*Controller
	for _, c := range m.jobs {
		if c.Owner() == owner {
			victims = append(victims, c)
		}
	}
	for _, c := range victims {
		m.removeLocked(c)
	}
	m.mu.Unlock()
	for _, c := range victims {
		c.Cancel()
	}
}

// Shutdown abandons every job.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	victims := make([]*Controller, 0, len(m.jobs))
	for _, c := range m.jobs {
		victims = append(victims, c)
	}
	m.jobs = make(map[string]*Controller)
	m.current = make(map[string]string)
	m.mu.Unlock()
	for _, c := range victims {
		c.Cancel()
	}
}

func (m *Manager) forget(c *Controller) {
	m.mu.Lock()
	m.removeLocked(c)
	m.mu.Unlock()
}

func (m *Manager) removeLocked(c *Controller) {
	delete(m.jobs, c.JobID())
	if m.current[c.Owner()] == c.JobID() {
		delete(m.current, c.Owner())
	}
	m.mirror.remove(c.JobID())
}
