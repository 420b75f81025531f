package tags

// Kind identifies one recognized response-tag kind.
type Kind string

const (
	KindWrite         Kind = "write"
	KindRename        Kind = "rename"
	KindDelete        Kind = "delete"
	KindSearchReplace Kind = "search-replace"
	KindAddDependency Kind = "add-dependency"
	KindChatSummary   Kind = "chat-summary"
	KindCommand       Kind = "command"
)

// WriteAction is a full-file write parsed from a <blaze-write> tag.
// Path is repo-relative with forward slashes. Content has any wrapping
// code fence already stripped. Description is nil when the attribute
// was absent (distinct from an empty attribute).
type WriteAction struct {
	Path        string  `json:"path"`
	Content     string  `json:"content"`
	Description *string `json:"description,omitempty"`
}

// RenameAction moves a file from one repo-relative path to another.
type RenameAction struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DeleteAction removes a file at a repo-relative path.
type DeleteAction struct {
	Path string `json:"path"`
}

// SearchReplaceAction applies a single exact-text substitution to a file.
type SearchReplaceAction struct {
	Path        string  `json:"path"`
	Search      string  `json:"search"`
	Replace     string  `json:"replace"`
	Description *string `json:"description,omitempty"`
}

// Command is a non-filesystem instruction such as <blaze-command type="restart">.
type Command struct {
	Type string `json:"type"`
}

// Batch holds every action parsed from one response, partitioned by kind.
// Ordering within each slice is document order.
type Batch struct {
	Writes         []WriteAction         `json:"writes"`
	Renames        []RenameAction        `json:"renames"`
	Deletes        []DeleteAction        `json:"deletes"`
	SearchReplaces []SearchReplaceAction `json:"search_replaces"`
	Packages       []string              `json:"packages"`
	ChatSummary    string                `json:"chat_summary,omitempty"`
	Commands       []Command             `json:"commands,omitempty"`
}

// Empty reports whether the batch contains no filesystem-mutating actions
// and no dependency additions.
func (b *Batch) Empty() bool {
	return len(b.Writes) == 0 &&
		len(b.Renames) == 0 &&
		len(b.Deletes) == 0 &&
		len(b.SearchReplaces) == 0 &&
		len(b.Packages) == 0
}
