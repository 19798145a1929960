package rating

const Disclaimer = "This is an automated management-quality assessment derived from an earnings-call transcript. " +
	"It is not investment advice. Scores reflect language-model judgment over limited text and should be " +
	"reviewed before any decision is based on them."

const (
	// ScoreMin and ScoreMax bound every valid category score.
	ScoreMin = 0
	ScoreMax = 5

	// MinJustificationChars is the rationale-length floor below which the
	// hygiene gate zeroes a category's score.
	MinJustificationChars = 30

	// RedFlagThreshold is the flag count at which the consistency override arms.
	RedFlagThreshold = 2

	// OverrideMeanFloor: when the valid-score mean exceeds this with the
	// override armed, scores above OverrideClampAbove are clamped.
	OverrideMeanFloor   = 3.5
	OverrideClampAbove  = 4
	OverrideClampTarget = 3

	// InsufficientJustification replaces rationales the hygiene gate rejects.
	InsufficientJustification = "insufficient justification provided"
)

type Category string

const (
	CategoryStrategy      Category = "Strategy & Vision"
	CategoryExecution     Category = "Execution & Delivery"
	CategoryCommunication Category = "Communication Clarity"
	CategoryCapital       Category = "Capital Allocation"
	CategoryGovernance    Category = "Governance & Integrity"
	CategoryOutlook       Category = "Outlook & Realism"
)

// Schema returns the canonical categories in display order. The slice is a
// fresh copy; callers may not extend the schema at runtime.
func Schema() []Category {
	return []Category{
		CategoryStrategy,
		CategoryExecution,
		CategoryCommunication,
		CategoryCapital,
		CategoryGovernance,
		CategoryOutlook,
	}
}

// aliasTable maps labels the scorer is known to emit onto canonical
// categories. Lookup is case- and whitespace-insensitive; unknown labels pass
// through unchanged and are then rejected against the schema.
var aliasTable = map[string]Category{
	"strategy":                CategoryStrategy,
	"vision":                  CategoryStrategy,
	"strategy and vision":     CategoryStrategy,
	"execution":               CategoryExecution,
	"delivery":                CategoryExecution,
	"execution and delivery":  CategoryExecution,
	"operational performance": CategoryExecution,
	"handling tough phases":   CategoryExecution, // legacy seventh category
	"communication":           CategoryCommunication,
	"clarity":                 CategoryCommunication,
	"communication clarity":   CategoryCommunication,
	"capital allocation":      CategoryCapital,
	"capital discipline":      CategoryCapital,
	"capital":                 CategoryCapital,
	"governance":              CategoryGovernance,
	"integrity":               CategoryGovernance,
	"governance and integrity": CategoryGovernance,
	"outlook":                  CategoryOutlook,
	"realism":                  CategoryOutlook,
	"outlook and realism":      CategoryOutlook,
	"guidance":                 CategoryOutlook,
}

// Score is a tagged category score. The zero value is the unscored sentinel:
// it is distinguishable from an earned 0 and excluded from all arithmetic.
type Score struct {
	Valid bool `json:"valid"`
	Value int  `json:"value"`
}

func ValidScore(v int) Score { return Score{Valid: true, Value: v} }

// Unscored is the default sentinel for categories the scorer did not cover.
var Unscored = Score{}

// Record holds exactly one score per canonical category.
type Record map[Category]Score

// Justifications carries optional per-category rationale text.
type Justifications map[Category]string

// Result is a fully post-processed rating: gated, override-applied, averaged.
type Result struct {
	Scores         Record         `json:"scores"`
	Justifications Justifications `json:"justifications,omitempty"`
	RedFlags       []string       `json:"red_flags,omitempty"`
	Average        float64        `json:"average"`
	OverrideFired  bool           `json:"override_fired"`
	GatedCount     int            `json:"gated_count"`
}
