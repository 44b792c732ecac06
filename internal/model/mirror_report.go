package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MirrorReport is the result of one mirror session.
// It is filled in step by step by the pipeline: the mirror step attaches the
// graph, the export step records the output directory, and reporters read the
// collected resource records.
//
// Design decision: We keep the live Graph next to the flattened records
// because:
//  1. Export needs the rendered content, which only the graph holds
//  2. Reports and the database need a stable, serializable snapshot
//  3. Collecting once avoids every consumer re-locking each resource
type MirrorReport struct {
	// SessionID uniquely identifies the session (a UUID).
	SessionID string `json:"session_id"`

	// Seeds are the URLs the session started from.
	Seeds []string `json:"seeds"`

	// OutputDir is where the mirror was written. Empty if not exported.
	OutputDir string `json:"output_dir,omitempty"`

	// StartedAt is when the session started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last resource settled.
	FinishedAt time.Time `json:"finished_at"`

	// Resources lists every resource of the graph, ordered by id.
	Resources []ResourceRecord `json:"resources"`

	// Stats summarizes Resources.
	Stats MirrorStats `json:"stats"`

	// TimedOut indicates the session was cut short by its deadline.
	TimedOut bool `json:"timed_out"`

	// Error contains any error message if the session failed.
	Error string `json:"error,omitempty"`

	// Steps records the pipeline steps in execution order.
	Steps []StepRecord `json:"steps,omitempty"`

	// Graph is the live resource graph. Not serialized.
	Graph *Graph `json:"-"`
}

// ResourceRecord is the flattened view of one Resource.
type ResourceRecord struct {
	// ID is the resource's id in the graph.
	ID int `json:"id"`

	// URL is the normalized URL.
	URL string `json:"url"`

	// LocalPath is where the resource is stored, relative to the output dir.
	LocalPath string `json:"local_path,omitempty"`

	// ContentType is the content classification (html, css, binary).
	ContentType string `json:"content_type"`

	// Status is the final lifecycle state.
	Status string `json:"status"`

	// Size is the fetched body length in bytes.
	Size int `json:"size"`

	// SHA256 is the hex digest of the exported content.
	SHA256 string `json:"sha256,omitempty"`

	// Depth is the navigation depth from the nearest seed.
	Depth int `json:"depth"`

	// Parents are the ids of referring resources.
	Parents []int `json:"parents,omitempty"`

	// Children are the ids of referenced resources.
	Children []int `json:"children,omitempty"`

	// Title is the page title for HTML resources.
	Title string `json:"title,omitempty"`

	// Error explains a filtered or failed resource.
	Error string `json:"error,omitempty"`
}

// StepRecord is the outcome of one pipeline step.
type StepRecord struct {
	// Name is the step name.
	Name string `json:"name"`

	// Duration is how long the step ran.
	Duration time.Duration `json:"duration_ns"`

	// Skipped is set when the step did not run because the session was
	// cancelled before it.
	Skipped bool `json:"skipped,omitempty"`

	// Error is the step's error, if any.
	Error string `json:"error,omitempty"`
}

// MirrorStats contains aggregate counts for a session.
type MirrorStats struct {
	// Total is the number of distinct URLs discovered.
	Total int `json:"total"`

	// Saved is the number of resources with content (fetched or done).
	Saved int `json:"saved"`

	// Filtered is the number of URLs rejected by the admission policy.
	Filtered int `json:"filtered"`

	// Failed is the number of URLs that could not be fetched.
	Failed int `json:"failed"`

	// Pending is the number of URLs still unresolved (only after a timeout).
	Pending int `json:"pending"`

	// Bytes is the total size of saved content.
	Bytes int64 `json:"bytes"`

	// ByContentType counts saved resources per content type.
	ByContentType map[string]int `json:"by_content_type"`

	// FilesWritten is set by the export step.
	FilesWritten int `json:"files_written"`
}

// NewMirrorReport creates a report for a session starting now.
func NewMirrorReport(sessionID string, seeds []string) *MirrorReport {
	return &MirrorReport{
		SessionID: sessionID,
		Seeds:     seeds,
		StartedAt: time.Now(),
		Resources: make([]ResourceRecord, 0),
		Stats: MirrorStats{
			ByContentType: make(map[string]int),
		},
	}
}

// Collect snapshots g into Resources and Stats and attaches g to the report.
// Calling it again replaces the previous snapshot but keeps titles already
// recorded for a URL.
func (r *MirrorReport) Collect(g *Graph) {
	titles := make(map[string]string, len(r.Resources))
	for _, rec := range r.Resources {
		if rec.Title != "" {
			titles[rec.URL] = rec.Title
		}
	}

	r.Graph = g
	r.Resources = make([]ResourceRecord, 0, g.Len())
	r.Stats = MirrorStats{
		ByContentType: make(map[string]int),
		FilesWritten:  r.Stats.FilesWritten,
	}

	for _, res := range g.All() {
		rec := ResourceRecord{
			ID:        res.ID,
			URL:       res.URL,
			LocalPath: res.LocalPath(),
			Status:    res.Status().String(),
			Depth:     res.Depth,
			Parents:   res.Parents(),
			Children:  res.Children(),
			Title:     titles[res.URL],
		}
		if err := res.Err(); err != nil {
			rec.Error = err.Error()
		}

		r.Stats.Total++
		switch st := res.Status(); {
		case st.HasContent():
			rec.ContentType = res.ContentType().String()
			rec.Size = res.Size()
			sum := sha256.Sum256(res.Bytes())
			rec.SHA256 = hex.EncodeToString(sum[:])
			r.Stats.Saved++
			r.Stats.Bytes += int64(rec.Size)
			r.Stats.ByContentType[rec.ContentType]++
		case st == StatusFiltered:
			r.Stats.Filtered++
		case st == StatusFailed:
			r.Stats.Failed++
		default:
			r.Stats.Pending++
		}

		r.Resources = append(r.Resources, rec)
	}
}

// Finish records the end time.
func (r *MirrorReport) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns how long the session ran.
func (r *MirrorReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// WithStatus returns the records in the given status, ordered by id.
func (r *MirrorReport) WithStatus(s Status) []ResourceRecord {
	want := s.String()
	out := make([]ResourceRecord, 0)
	for _, rec := range r.Resources {
		if rec.Status == want {
			out = append(out, rec)
		}
	}
	return out
}

// Pages returns the saved HTML records.
func (r *MirrorReport) Pages() []ResourceRecord {
	out := make([]ResourceRecord, 0)
	for _, rec := range r.Resources {
		if rec.ContentType == ContentTypeHTML.String() {
			out = append(out, rec)
		}
	}
	return out
}

// SetTitle records the page title for the resource with the given URL.
func (r *MirrorReport) SetTitle(rawURL, title string) {
	for i := range r.Resources {
		if r.Resources[i].URL == rawURL {
			r.Resources[i].Title = title
			return
		}
	}
}
