package gmail

import (
	"context"
	"fmt"
)

// Reader is the non-mutating Gmail surface the migration needs. A dry run can
// be driven from a Reader alone.
type Reader interface {
	// ListLabels returns the full label taxonomy and primes the client's
	// name-to-id cache.
	ListLabels(ctx context.Context) ([]Label, error)
	// FindByMessageID performs an exact rfc822msgid lookup. A nil match means
	// the identifier does not exist in the mailbox; no fuzzy fallback occurs.
	FindByMessageID(ctx context.Context, messageID string) (*Match, error)
}

// Mutator is the mutating surface. Every method fails with a
// *BlockedWriteError when the client was built read-only.
type Mutator interface {
	// EnsureLabel returns the label named name, creating it if needed.
	// Idempotent: two calls with the same name never yield two labels.
	EnsureLabel(ctx context.Context, name string) (Label, error)
	// EnsureLabels is the bulk form; it must run before any mutation that
	// references the returned names.
	EnsureLabels(ctx context.Context, names []string) (map[string]LabelID, error)
	// ModifyThread applies label changes to a whole conversation thread.
	ModifyThread(ctx context.Context, threadID ThreadID, ops ModifyOps) error
	// BatchModify applies label changes to many messages, chunked to the
	// provider's batch ceiling.
	BatchModify(ctx context.Context, ids []MessageID, ops ModifyOps) error
}

// Client is the full Gmail surface required by the migration.
type Client interface {
	Reader
	Mutator
}

// CachedLabelID resolves a previously listed or ensured label name. Exposed
// so the orchestrator can translate names to ids without extra API calls.
type CachedLabelID interface {
	CachedLabelID(name string) (LabelID, bool)
}

// BlockedWriteError is raised when a mutating call is attempted on a
// read-only client. It signals a programming-contract violation, never a
// condition to swallow.
type BlockedWriteError struct {
	Op string
}

func (e *BlockedWriteError) Error() string {
	return fmt.Sprintf("gmail: blocked write: %s called on read-only client", e.Op)
}
