// Package integrity holds the append-only rules for proctoring data.
//
// Everything here is a pure function of (current record, incoming event). The
// service layer loads a record, applies one of these, and writes the result
// back under an optimistic revision check.
package integrity

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// DefaultTabSwitchWindow is the minimum gap between two counted tab switches.
const DefaultTabSwitchWindow = 2000 * time.Millisecond

var ErrInvalidEvent = errors.New("invalid integrity event")

// Policy applies integrity events to a record.
type Policy struct {
	TabSwitchWindow time.Duration
}

// NewPolicy returns a Policy, falling back to DefaultTabSwitchWindow when
// window is zero.
func NewPolicy(window time.Duration) Policy {
	if window <= 0 {
		window = DefaultTabSwitchWindow
	}
	return Policy{TabSwitchWindow: window}
}

// Violation applies one reported event. The bool is false when the event was
// discarded by the debounce window.
func (p Policy) Violation(rec model.Integrity, ev model.ViolationEvent) (model.Integrity, bool, error) {
	if !ev.Kind.Valid() {
		return rec, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		return rec, false, fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}

	if ev.Kind == model.ViolationTabSwitch {
		return p.tabSwitch(rec, ev.Timestamp)
	}

	out := rec.Clone()
	out.FaceViolations = append(out.FaceViolations, ev)
	return out, true, nil
}

// FaceSample records a periodic presence check. Present samples leave the
// record untouched.
func (p Policy) FaceSample(rec model.Integrity, present bool, at time.Time) (model.Integrity, bool, error) {
	if present {
		return rec, false, nil
	}
	return p.Violation(rec, model.ViolationEvent{Kind: model.ViolationNoFace, Timestamp: at})
}

// Plagiarism appends an advisory similarity score.
func (p Policy) Plagiarism(rec model.Integrity, score model.PlagiarismScore) (model.Integrity, error) {
	if score.QuestionID == "" {
		return rec, fmt.Errorf("%w: question id is required", ErrInvalidEvent)
	}
	if score.SimilarityScore < 0 || score.SimilarityScore > 100 {
		return rec, fmt.Errorf("%w: similarity score %v out of range 0-100", ErrInvalidEvent, score.SimilarityScore)
	}
	out := rec.Clone()
	out.PlagiarismScores = append(out.PlagiarismScores, score)
	return out, nil
}

// Merge folds a client snapshot into rec. Events already present are
// skipped, tab switches still go through the debounce window, and invalid
// entries are dropped.
func (p Policy) Merge(rec model.Integrity, snap *model.IntegritySnapshot) model.Integrity {
	if snap == nil {
		return rec
	}
	out := rec.Clone()

	faces := append([]model.ViolationEvent(nil), snap.FaceViolations...)
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].Timestamp.Before(faces[j].Timestamp) })
	for _, ev := range faces {
		if ev.Kind == model.ViolationTabSwitch || hasFaceViolation(out, ev) {
			continue
		}
		if next, ok, err := p.Violation(out, ev); err == nil && ok {
			out = next
		}
	}

	switches := append([]time.Time(nil), snap.TabSwitchTimestamps...)
	sort.Slice(switches, func(i, j int) bool { return switches[i].Before(switches[j]) })
	for _, ts := range switches {
		if ts.IsZero() {
			continue
		}
		out = p.mergeTabSwitch(out, ts)
	}

	for _, ps := range snap.PlagiarismScores {
		if hasPlagiarismScore(out, ps) {
			continue
		}
		if next, err := p.Plagiarism(out, ps); err == nil {
			out = next
		}
	}
	return out
}

func (p Policy) tabSwitch(rec model.Integrity, at time.Time) (model.Integrity, bool, error) {
	if n := len(rec.TabSwitchTimestamps); n > 0 {
		gap := at.Sub(rec.TabSwitchTimestamps[n-1])
		if gap < 0 {
			gap = -gap
		}
		if gap < p.TabSwitchWindow {
			return rec, false, nil
		}
	}
	out := rec.Clone()
	out.TabSwitchTimestamps = append(out.TabSwitchTimestamps, at)
	out.TabSwitchCount = len(out.TabSwitchTimestamps)
	return out, true, nil
}

// mergeTabSwitch adds a replayed switch and keeps the timestamps in time
// order. A timestamp that is already recorded, or that falls inside the
// window of its nearest recorded neighbour, is dropped.
func (p Policy) mergeTabSwitch(rec model.Integrity, at time.Time) model.Integrity {
	for _, existing := range rec.TabSwitchTimestamps {
		gap := at.Sub(existing)
		if gap < 0 {
			gap = -gap
		}
		if gap < p.TabSwitchWindow {
			return rec
		}
	}

	out := rec.Clone()
	out.TabSwitchTimestamps = append(out.TabSwitchTimestamps, at)
	sort.Slice(out.TabSwitchTimestamps, func(i, j int) bool {
		return out.TabSwitchTimestamps[i].Before(out.TabSwitchTimestamps[j])
	})
	out.TabSwitchCount = len(out.TabSwitchTimestamps)
	return out
}

func hasFaceViolation(rec model.Integrity, ev model.ViolationEvent) bool {
	for _, existing := range rec.FaceViolations {
		if existing.Kind == ev.Kind && existing.Timestamp.Equal(ev.Timestamp) {
			return true
		}
	}
	return false
}

func hasPlagiarismScore(rec model.Integrity, ps model.PlagiarismScore) bool {
	for _, existing := range rec.PlagiarismScores {
		if existing.QuestionID == ps.QuestionID && existing.CheckedAt.Equal(ps.CheckedAt) {
			return true
		}
	}
	return false
}
