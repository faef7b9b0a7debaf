package gmail

type MessageID string
type ThreadID string
type LabelID string

// LabelKind distinguishes Gmail's built-in labels from user-created ones.
type LabelKind string

const (
	LabelKindSystem LabelKind = "system"
	LabelKindUser   LabelKind = "user"
)

// Label is one entry in the Gmail label taxonomy.
type Label struct {
	ID   LabelID
	Name string
	Kind LabelKind
}

// Match is the result of an exact Message-ID lookup. ResultCount records how
// many messages the query returned; only the first is used.
type Match struct {
	MessageID   MessageID
	ThreadID    ThreadID
	ResultCount int
}

// ModifyOps describes a label mutation applied at thread granularity.
type ModifyOps struct {
	AddLabelIDs    []LabelID
	RemoveLabelIDs []LabelID
}
