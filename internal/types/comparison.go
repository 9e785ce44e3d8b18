//nolint:revive // types is a standard Go package name pattern
package types

// ManualReviewEntry is one project-officer judgment, as authored. Never mutated.
// ApplicationID is set when the entry came from a sheet that tracks several applications.
type ManualReviewEntry struct {
	ApplicationID string `json:"applicationId,omitempty"`
	Section       string `json:"section,omitempty"`
	ElementLabel  string `json:"element"`
	RawStatus     string `json:"status"`
	Comments      string `json:"comments,omitempty"`
}

// MatchResult classifies one comparison record.
type MatchResult string

const (
	MatchResultMatch           MatchResult = "MATCH"
	MatchResultMismatch        MatchResult = "MISMATCH"
	MatchResultMissingInManual MatchResult = "MISSING_IN_MANUAL"
	MatchResultMissingInAI     MatchResult = "MISSING_IN_AI"
)

// ComparisonRecord joins one AI verdict with its manual counterpart, or records that one side is missing.
type ComparisonRecord struct {
	ApplicationID string      `json:"applicationId"`
	Section       string      `json:"section"`
	Element       string      `json:"element"`
	ManualElement string      `json:"manualElement,omitempty"`
	AIStatus      Status      `json:"aiStatus"`
	ManualStatus  Status      `json:"manualStatus"`
	MatchResult   MatchResult `json:"matchResult"`
	MatchKind     string      `json:"matchKind,omitempty"`
	AIEvidence    string      `json:"aiEvidence"`
	AIReasoning   string      `json:"aiReasoning"`
	ManualComment string      `json:"manualComment"`
}

// ComparisonStats summarizes agreement for one application.
// Total counts the AI verdicts that took part in the comparison; MissingInAI is reported alongside it.
type ComparisonStats struct {
	Total              int     `json:"total"`
	Matching           int     `json:"matching"`
	Mismatching        int     `json:"mismatching"`
	MissingInManual    int     `json:"missingInManual"`
	MissingInAI        int     `json:"missingInAI"`
	SuccessRatePercent float64 `json:"successRatePercent"`
}

// AmbiguousMatch records an AI element that more than one manual entry satisfied equally well.
type AmbiguousMatch struct {
	Section    string   `json:"section"`
	Element    string   `json:"element"`
	MatchKind  string   `json:"matchKind"`
	Candidates []string `json:"candidates"`
	Chosen     string   `json:"chosen"`
}

// ApplicationComparison is the full comparison output for one application.
type ApplicationComparison struct {
	ApplicationID string             `json:"applicationId"`
	Records       []ComparisonRecord `json:"records"`
	Stats         ComparisonStats    `json:"stats"`
	Excluded      []string           `json:"excluded,omitempty"`
	Ambiguities   []AmbiguousMatch   `json:"ambiguities,omitempty"`
}

// AggregateStats summarizes many applications.
// MeanSuccessRatePercent is the unweighted mean of per-application rates;
// PooledSuccessRatePercent divides total matches by total compared verdicts.
type AggregateStats struct {
	Applications             int     `json:"applications"`
	Total                    int     `json:"total"`
	Matching                 int     `json:"matching"`
	Mismatching              int     `json:"mismatching"`
	MissingInManual          int     `json:"missingInManual"`
	MissingInAI              int     `json:"missingInAI"`
	MeanSuccessRatePercent   float64 `json:"meanSuccessRatePercent"`
	PooledSuccessRatePercent float64 `json:"pooledSuccessRatePercent"`
}
