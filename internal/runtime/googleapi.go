// Package runtime adapts the Google API SDK and credential providers to the
// narrow interfaces the migration services are written against.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	gapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/frontporter/internal/gmail"
	"github.com/joshsymonds/frontporter/internal/rate"
	"github.com/joshsymonds/frontporter/internal/retry"
)

const (
	maxInFlight  = 5
	batchCeiling = 1000 // Gmail caps batchModify at 1000 ids per call
	lookupLimit  = 2    // exact-match query; 2 lets us notice duplicates
)

// IsRetryable classifies Gmail API errors. Besides HTTP status, Gmail signals
// rate limiting through reason codes on 403 responses, so those are checked too.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		if ge.Code == http.StatusTooManyRequests || ge.Code >= 500 {
			return true
		}
		for _, item := range ge.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
				return true
			}
		}
		return false
	}
	// transport-level failures (connection reset, EOF) are worth another try
	return true
}

// GoogleClient implements gmail.Client over the Gmail REST API. All calls go
// through a 5-slot admission limiter and the shared retry policy. When
// readOnly is set, every mutating method fails with a BlockedWriteError.
type GoogleClient struct {
	svc      *gapi.Service
	adm      *rate.Admission
	cache    *gc.LabelCache
	log      *slog.Logger
	policy   retry.Policy
	readOnly bool
}

// NewGoogleAPIClient wraps svc. readOnly makes the client provably
// non-mutating: writes are rejected before any request is built.
func NewGoogleAPIClient(svc *gapi.Service, readOnly bool, logger *slog.Logger) *GoogleClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &GoogleClient{
		svc:      svc,
		adm:      rate.NewAdmission(maxInFlight),
		cache:    gc.NewLabelCache(),
		log:      logger,
		policy:   retry.DefaultPolicy(IsRetryable),
		readOnly: readOnly,
	}
}

var _ gc.Client = (*GoogleClient)(nil)
var _ gc.CachedLabelID = (*GoogleClient)(nil)

func call[T any](ctx context.Context, g *GoogleClient, op func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) (T, error) {
		var zero T
		if err := g.adm.Acquire(ctx); err != nil {
			return zero, err
		}
		defer g.adm.Release()
		return op(ctx)
	})
}

// ListLabels fetches the label taxonomy and replaces the cache with it.
func (g *GoogleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	res, err := call(ctx, g, func(ctx context.Context) (*gapi.ListLabelsResponse, error) {
		return g.svc.Users.Labels.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	labels := make([]gc.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, toLabel(l))
	}
	g.cache.Replace(labels)
	return labels, nil
}

// FindByMessageID issues an exact rfc822msgid query and returns at most one
// match. A nil match with nil error means the identifier is absent.
func (g *GoogleClient) FindByMessageID(ctx context.Context, messageID string) (*gc.Match, error) {
	query := fmt.Sprintf("rfc822msgid:%s", messageID)
	res, err := call(ctx, g, func(ctx context.Context) (*gapi.ListMessagesResponse, error) {
		return g.svc.Users.Messages.List("me").Q(query).MaxResults(lookupLimit).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", messageID, err)
	}
	if len(res.Messages) == 0 {
		return nil, nil
	}
	if len(res.Messages) > 1 {
		g.log.WarnContext(ctx, "message id matched multiple messages", "message_id", messageID, "count", len(res.Messages))
	}
	first := res.Messages[0]
	return &gc.Match{
		MessageID:   gc.MessageID(first.Id),
		ThreadID:    gc.ThreadID(first.ThreadId),
		ResultCount: len(res.Messages),
	}, nil
}

// EnsureLabel returns the cached label or creates it. A creation conflict
// (another actor created the label first) resolves by re-listing, so the call
// is idempotent.
func (g *GoogleClient) EnsureLabel(ctx context.Context, name string) (gc.Label, error) {
	if g.readOnly {
		return gc.Label{}, &gc.BlockedWriteError{Op: "EnsureLabel"}
	}
	if label, ok := g.cache.Get(name); ok {
		return label, nil
	}
	created, err := call(ctx, g, func(ctx context.Context) (*gapi.Label, error) {
		return g.svc.Users.Labels.Create("me", &gapi.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
	})
	if err != nil {
		if !isConflict(err) {
			return gc.Label{}, fmt.Errorf("create label %q: %w", name, err)
		}
		if _, listErr := g.ListLabels(ctx); listErr != nil {
			return gc.Label{}, fmt.Errorf("relist after conflict on %q: %w", name, listErr)
		}
		label, ok := g.cache.Get(name)
		if !ok {
			return gc.Label{}, fmt.Errorf("label %q conflicted but is not listed", name)
		}
		return label, nil
	}
	label := toLabel(created)
	g.cache.Put(label)
	return label, nil
}

// EnsureLabels reconciles every name and returns the name-to-id mapping. The
// cache is primed with a fresh listing first so existing labels are reused.
func (g *GoogleClient) EnsureLabels(ctx context.Context, names []string) (map[string]gc.LabelID, error) {
	if g.readOnly {
		return nil, &gc.BlockedWriteError{Op: "EnsureLabels"}
	}
	if _, err := g.ListLabels(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]gc.LabelID, len(names))
	for _, name := range names {
		label, err := g.EnsureLabel(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = label.ID
	}
	return out, nil
}

// ModifyThread applies label changes at conversation-thread granularity so
// the whole email thread is labeled consistently.
func (g *GoogleClient) ModifyThread(ctx context.Context, threadID gc.ThreadID, ops gc.ModifyOps) error {
	if g.readOnly {
		return &gc.BlockedWriteError{Op: "ModifyThread"}
	}
	req := &gapi.ModifyThreadRequest{
		AddLabelIds:    labelIDStrings(ops.AddLabelIDs),
		RemoveLabelIds: labelIDStrings(ops.RemoveLabelIDs),
	}
	_, err := call(ctx, g, func(ctx context.Context) (*gapi.Thread, error) {
		return g.svc.Users.Threads.Modify("me", string(threadID), req).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("modify thread %s: %w", threadID, err)
	}
	return nil
}

// BatchModify chunks ids to the provider ceiling and issues one rate-limited
// call per chunk.
func (g *GoogleClient) BatchModify(ctx context.Context, ids []gc.MessageID, ops gc.ModifyOps) error {
	if g.readOnly {
		return &gc.BlockedWriteError{Op: "BatchModify"}
	}
	for start := 0; start < len(ids); start += batchCeiling {
		end := min(start+batchCeiling, len(ids))
		req := &gapi.BatchModifyMessagesRequest{
			Ids:            messageIDStrings(ids[start:end]),
			AddLabelIds:    labelIDStrings(ops.AddLabelIDs),
			RemoveLabelIds: labelIDStrings(ops.RemoveLabelIDs),
		}
		_, err := call(ctx, g, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, g.svc.Users.Messages.BatchModify("me", req).Context(ctx).Do()
		})
		if err != nil {
			return fmt.Errorf("batch modify (%d ids): %w", end-start, err)
		}
	}
	return nil
}

// CachedLabelID resolves a name against the client-owned cache without a
// network call.
func (g *GoogleClient) CachedLabelID(name string) (gc.LabelID, bool) {
	label, ok := g.cache.Get(name)
	return label.ID, ok
}

func isConflict(err error) bool {
	var ge *googleapi.Error
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Code == http.StatusConflict ||
		(ge.Code == http.StatusBadRequest && ge.Message == "Label name exists or conflicts")
}

func toLabel(l *gapi.Label) gc.Label {
	kind := gc.LabelKindUser
	if l.Type == "system" {
		kind = gc.LabelKindSystem
	}
	return gc.Label{ID: gc.LabelID(l.Id), Name: l.Name, Kind: kind}
}

func labelIDStrings(ids []gc.LabelID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func messageIDStrings(ids []gc.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
