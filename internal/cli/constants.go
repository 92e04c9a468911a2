package cli

// Default values for CLI flags and output.
const (
	// MaxDescriptionLength is the maximum length of a feature description to display.
	MaxDescriptionLength = 50
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// UserAgent identifies featurectl to remote repositories.
	UserAgent = "featurectl/" + Version
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)
