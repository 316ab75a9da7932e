package model

import "time"

// ViolationKind is the closed set of proctoring violations.
type ViolationKind string

const (
	ViolationNoFace        ViolationKind = "no_face"
	ViolationMultipleFaces ViolationKind = "multiple_faces"
	ViolationTabSwitch     ViolationKind = "tab_switch"
)

// Valid reports whether k is a known violation kind.
func (k ViolationKind) Valid() bool {
	switch k {
	case ViolationNoFace, ViolationMultipleFaces, ViolationTabSwitch:
		return true
	}
	return false
}

// ViolationMetadata carries the optional details a client may attach.
// Fields not relevant to a kind are left zero.
type ViolationMetadata struct {
	FaceCount   int    `json:"face_count,omitempty"`
	HiddenForMs int64  `json:"hidden_for_ms,omitempty"`
	Source      string `json:"source,omitempty"`
}

// ViolationEvent is one recorded face-presence violation.
type ViolationEvent struct {
	Kind      ViolationKind     `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  ViolationMetadata `json:"metadata"`
}

// PlagiarismScore is advisory similarity data for one coding answer.
type PlagiarismScore struct {
	QuestionID      string    `json:"question_id"`
	SimilarityScore float64   `json:"similarity_score"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Integrity is the append-only proctoring record of a session.
type Integrity struct {
	FaceViolations      []ViolationEvent  `json:"face_violations"`
	TabSwitchCount      int               `json:"tab_switch_count"`
	TabSwitchTimestamps []time.Time       `json:"tab_switch_timestamps"`
	PlagiarismScores    []PlagiarismScore `json:"plagiarism_scores"`
}

// IntegritySnapshot is what a client sends along with submit. The tab switch
// count is always derived server-side from the accepted timestamps.
type IntegritySnapshot struct {
	FaceViolations      []ViolationEvent  `json:"face_violations"`
	TabSwitchTimestamps []time.Time       `json:"tab_switch_timestamps"`
	PlagiarismScores    []PlagiarismScore `json:"plagiarism_scores"`
}

// Clone returns a deep copy of the integrity record.
func (i Integrity) Clone() Integrity {
	return Integrity{
		FaceViolations:      append([]ViolationEvent{}, i.FaceViolations...),
		TabSwitchCount:      i.TabSwitchCount,
		TabSwitchTimestamps: append([]time.Time{}, i.TabSwitchTimestamps...),
		PlagiarismScores:    append([]PlagiarismScore{}, i.PlagiarismScores...),
	}
}
