package prompts

// Input carries everything a prompt template may reference. Unused fields
// render as empty; templates are compiled with missingkey=zero.
type Input struct {
	ServiceAreaName string
	Industries      []string

	// Summarized context blob texts, already gated through the summarizer.
	ContextBlocks []string
	AssetBlocks   []string

	PrimaryProblem string
	ProblemTitle   string
	SolutionTitle  string
	OutlineJSON    string

	PreviousTitles []string
	Exclusions     []string
	FocusAngle     string

	// Number of items the step wants back.
	Count int

	RawText string

	// Email personalization fields.
	Persona          string
	Style            string
	Output           string
	Personalization  string
	Constraints      string
	Examples         string
	Context          string
	RecipientSummary string
	ContentLinks     []ContentLinkRef
}

// ContentLinkRef is one not-yet-sent content link offered to the email model,
// addressed by its 1-based index.
type ContentLinkRef struct {
	Index   int
	Title   string
	URL     string
	Summary string
}
