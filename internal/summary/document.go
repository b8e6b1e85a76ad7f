package summary

// Document is the JSON body served for a summary page.
type Document struct {
	State    string `json:"state"`
	Panel    string `json:"panel,omitempty"`
	BackPath string `json:"back_path,omitempty"`
	Summary  any    `json:"summary,omitempty"`
}

const (
	awaitingPanel   = "Loading summary..."
	pendingPanel    = "Your summary is queued and will start processing shortly."
	processingPanel = "Your summary is being generated. This may take a few minutes depending on the length of the recording."
)

type documentBuilder struct {
	doc Document
}

func (d *documentBuilder) VisitAwaitingCredential(v AwaitingCredential) error {
	d.doc = Document{State: v.State(), Panel: awaitingPanel}
	return nil
}

func (d *documentBuilder) VisitPending(v Pending) error {
	d.doc = Document{State: v.State(), Panel: pendingPanel, Summary: v}
	return nil
}

func (d *documentBuilder) VisitProcessing(v Processing) error {
	d.doc = Document{State: v.State(), Panel: processingPanel, Summary: v}
	return nil
}

func (d *documentBuilder) VisitCompleted(v Completed) error {
	d.doc = Document{State: v.State(), BackPath: ListingPath, Summary: v}
	return nil
}

func (d *documentBuilder) VisitFailed(v Failed) error {
	d.doc = Document{State: v.State(), Panel: v.Message, BackPath: ListingPath, Summary: v}
	return nil
}

func (d *documentBuilder) VisitLoadError(v LoadError) error {
	d.doc = Document{State: v.State(), Panel: v.Message, BackPath: v.BackPath}
	return nil
}

// Render turns v into its JSON document.
func Render(v View) Document {
	b := &documentBuilder{}
	_ = v.Accept(b)
	return b.doc
}
