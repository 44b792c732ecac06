package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/nao1215/sitemirror/internal/model"
)

// Diff lists the differences between the saved resources of two sessions.
type Diff struct {
	// Added are URLs saved only by the newer session.
	Added []string

	// Removed are URLs saved only by the older session.
	Removed []string

	// Changed are URLs saved by both sessions with different content.
	Changed []string

	// Unchanged is the number of URLs saved by both with identical content.
	Unchanged int
}

// Empty reports whether the sessions saved the same content.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare diffs the saved resources of the older and newer session.
// Only resources with content take part; a URL that failed in one run and
// was saved in the other counts as added or removed.
func (m *MirrorDB) Compare(ctx context.Context, olderID, newerID string) (Diff, error) {
	older, err := m.savedDigests(ctx, olderID)
	if err != nil {
		return Diff{}, err
	}
	newer, err := m.savedDigests(ctx, newerID)
	if err != nil {
		return Diff{}, err
	}

	var d Diff
	for u, sum := range newer {
		prev, ok := older[u]
		switch {
		case !ok:
			d.Added = append(d.Added, u)
		case prev != sum:
			d.Changed = append(d.Changed, u)
		default:
			d.Unchanged++
		}
	}
	for u := range older {
		if _, ok := newer[u]; !ok {
			d.Removed = append(d.Removed, u)
		}
	}

	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d, nil
}

// savedDigests maps the URLs a session saved to their sha256.
func (m *MirrorDB) savedDigests(ctx context.Context, sessionID string) (map[string]string, error) {
	if err := m.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	records, err := m.Resources(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	digests := make(map[string]string, len(records))
	for _, rec := range records {
		if model.ParseStatus(rec.Status).HasContent() {
			digests[rec.URL] = rec.SHA256
		}
	}
	return digests, nil
}

func (m *MirrorDB) requireSession(ctx context.Context, sessionID string) error {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
