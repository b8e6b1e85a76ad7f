package upload

// Phase is the client-visible state of an upload job.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	// PhaseProcessing is the wait for the server's answer after the transfer.
	PhaseProcessing Phase = "processing"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// IsTerminal reports whether the job will not change anymore.
func (p Phase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// InFlight reports whether a submission is between validation and a result.
func (p Phase) InFlight() bool {
	return p == PhaseValidating || p == PhaseUploading || p == PhaseProcessing
}

// Kind is the source of a job.
type Kind string

const (
	KindFile    Kind = "file"
	KindYouTube Kind = "youtube"
)
