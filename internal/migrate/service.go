// Package migrate drives the Front-to-Gmail migration pipeline:
// fetch, map, reconcile labels, batch, mutate, report.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joshsymonds/frontporter/internal/front"
	"github.com/joshsymonds/frontporter/internal/gmail"
	"github.com/joshsymonds/frontporter/internal/mapping"
)

const (
	defaultBatchSize = 10
	interBatchPause  = time.Second
)

// Spec configures one migration run. The zero value is deliberately the
// safest one: DryRun defaults to true at the config layer, and callers must
// opt in to mutation explicitly.
type Spec struct {
	BatchSize    int
	DryRun       bool
	SkipArchived bool
	InboxID      string
	ReportDir    string
	SummaryPath  string
}

// Stats are the run counters. Mutated only by the single control loop.
type Stats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Labeled   int `json:"labeled"`
	Archived  int `json:"archived"`
	Inbox     int `json:"inbox"`
	Skipped   int `json:"skipped"`
	NoMatch   int `json:"no_match"`
	Failed    int `json:"failed"`
}

// Source is the slice of the Front client the orchestrator consumes.
type Source interface {
	ListConversations(ctx context.Context, inboxID string) ([]front.Conversation, error)
}

// Service sequences the migration. Clock and Sleep are swappable for tests.
type Service struct {
	Source Source
	Target gmail.Client
	Logger *slog.Logger
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	// Progress receives a stats snapshot after every item. Best-effort,
	// one-way; never a control input.
	Progress func(Stats)
	RunID    string
}

// NewService constructs a Service with sane defaults.
func NewService(source Source, target gmail.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Source: source,
		Target: target,
		Logger: logger,
		Clock:  time.Now,
		Sleep:  sleepCtx,
	}
}

// Result is what a run leaves behind: counters, the full decision trail, and
// where the trail was persisted.
type Result struct {
	Stats      Stats
	Rows       []ReportRow
	ReportPath string
}

// Run executes the pipeline. Per-item errors become failed report rows;
// run-level errors (source auth, label reconciliation, a write-guard
// violation) abort the run after flushing whatever rows accumulated.
func (s *Service) Run(ctx context.Context, spec Spec) (Result, error) {
	started := s.Clock()
	batchSize := spec.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	log := s.Logger
	log.InfoContext(ctx, "starting migration run",
		"run_id", s.RunID, "dry_run", spec.DryRun, "batch_size", batchSize,
		"skip_archived", spec.SkipArchived, "inbox", spec.InboxID)

	convs, err := s.Source.ListConversations(ctx, spec.InboxID)
	if err != nil {
		var authErr *front.AuthError
		if errors.As(err, &authErr) {
			return Result{}, fmt.Errorf("front credentials rejected, aborting run: %w", err)
		}
		return Result{}, fmt.Errorf("fetch source conversations: %w", err)
	}

	items := make([]mapping.Item, len(convs))
	for i, conv := range convs {
		items[i] = mapping.Map(conv)
	}

	res := Result{Stats: Stats{Total: len(items)}}
	flush := func() {
		path, writeErr := WriteReportFile(spec.ReportDir, started, res.Rows)
		if writeErr != nil {
			// the in-memory trail and counters are already complete
			log.ErrorContext(ctx, "report write failed", "error", writeErr)
			return
		}
		res.ReportPath = path
		log.InfoContext(ctx, "report written", "path", path, "rows", len(res.Rows))
	}

	union := labelUnion(items)
	labelIDs, err := s.reconcileLabels(ctx, spec, union)
	if err != nil {
		flush()
		return res, fmt.Errorf("reconcile label taxonomy: %w", err)
	}

	for bi, batch := range partition(items, batchSize) {
		if bi > 0 {
			if err := s.Sleep(ctx, interBatchPause); err != nil {
				flush()
				return res, err
			}
		}
		log.InfoContext(ctx, "processing batch", "batch", bi+1, "size", len(batch))
		for _, item := range batch {
			row, fatal := s.processItem(ctx, spec, item, labelIDs, &res.Stats)
			res.Rows = append(res.Rows, row)
			if s.Progress != nil {
				s.Progress(res.Stats)
			}
			if fatal != nil {
				flush()
				return res, fatal
			}
		}
	}

	flush()
	s.writeSummary(ctx, spec, started, &res)
	log.InfoContext(ctx, "run complete",
		"total", res.Stats.Total, "matched", res.Stats.Matched,
		"labeled", res.Stats.Labeled, "skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed, "duration", s.Clock().Sub(started))
	return res, nil
}

// reconcileLabels makes sure every label name any item could need resolves to
// an id before the first mutation. In dry-run the union is only logged.
func (s *Service) reconcileLabels(ctx context.Context, spec Spec, union []string) (map[string]gmail.LabelID, error) {
	if spec.DryRun {
		s.Logger.InfoContext(ctx, "dry run: would ensure labels", "count", len(union), "labels", strings.Join(union, ";"))
		return nil, nil
	}
	ids, err := s.Target.EnsureLabels(ctx, union)
	if err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "label taxonomy reconciled", "count", len(ids))
	return ids, nil
}

// processItem runs the per-item state machine. The returned error is non-nil
// only for contract violations that must abort the whole run.
func (s *Service) processItem(ctx context.Context, spec Spec, item mapping.Item, labelIDs map[string]gmail.LabelID, stats *Stats) (ReportRow, error) {
	row := ReportRow{
		SourceID:  item.SourceID,
		Subject:   item.Subject,
		CreatedAt: item.CreatedAt,
		Archived:  item.Archived,
		Method:    MatchNone,
	}

	if item.MessageID == "" {
		row.Action = ActionSkipped
		row.Reason = "missing identifier"
		stats.Skipped++
		return row, nil
	}
	if spec.SkipArchived && item.Archived {
		row.Action = ActionSkipped
		row.Reason = "archived (skipped by configuration)"
		stats.Skipped++
		return row, nil
	}

	stats.Processed++
	row.Method = MatchByMessageID

	match, err := s.Target.FindByMessageID(ctx, item.MessageID)
	if err != nil {
		return s.failItem(ctx, row, stats, err)
	}
	if match == nil {
		row.Action = ActionNoMatch
		stats.NoMatch++
		return row, nil
	}

	stats.Matched++
	row.ResultCount = match.ResultCount
	row.GmailMessageID = string(match.MessageID)
	row.GmailThreadID = string(match.ThreadID)

	addNames := append(append([]string{}, item.Labels...), statusLabel(item.Archived))
	removeNames := []string{statusLabel(!item.Archived)}
	row.LabelsAdded = addNames
	row.LabelsRemoved = removeNames

	if spec.DryRun {
		row.Action = ActionDryRun
		return row, nil
	}

	ops := gmail.ModifyOps{
		AddLabelIDs:    s.resolve(ctx, addNames, labelIDs),
		RemoveLabelIDs: s.resolve(ctx, removeNames, labelIDs),
	}
	if err := s.Target.ModifyThread(ctx, gmail.ThreadID(row.GmailThreadID), ops); err != nil {
		return s.failItem(ctx, row, stats, err)
	}

	stats.Labeled++
	if item.Archived {
		stats.Archived++
	} else {
		stats.Inbox++
	}
	row.Action = ActionApplied
	return row, nil
}

// failItem converts an error into a failed row, except for write-guard
// violations, which are contract breaches and abort the run loudly.
func (s *Service) failItem(ctx context.Context, row ReportRow, stats *Stats, err error) (ReportRow, error) {
	row.Action = ActionFailed
	row.Reason = err.Error()
	stats.Failed++
	var blocked *gmail.BlockedWriteError
	if errors.As(err, &blocked) {
		return row, fmt.Errorf("write attempted in read-only mode: %w", err)
	}
	s.Logger.WarnContext(ctx, "item failed", "source_id", row.SourceID, "error", err)
	return row, nil
}

// resolve maps label names to cached ids. A missing name cannot happen when
// reconciliation ran first; it is logged and dropped rather than guessed.
func (s *Service) resolve(ctx context.Context, names []string, labelIDs map[string]gmail.LabelID) []gmail.LabelID {
	out := make([]gmail.LabelID, 0, len(names))
	for _, name := range names {
		id, ok := labelIDs[name]
		if !ok {
			if cache, hasCache := s.Target.(gmail.CachedLabelID); hasCache {
				id, ok = cache.CachedLabelID(name)
			}
		}
		if !ok {
			s.Logger.WarnContext(ctx, "label missing from cache, omitting", "label", name)
			continue
		}
		out = append(out, id)
	}
	return out
}

// labelUnion collects every sanitized tag name across all items plus both
// status labels, preserving first-appearance order.
func labelUnion(items []mapping.Item) []string {
	seen := map[string]struct{}{}
	var union []string
	add := func(name string) {
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		union = append(union, name)
	}
	for _, item := range items {
		for _, label := range item.Labels {
			add(label)
		}
	}
	add(mapping.StatusLabelArchived)
	add(mapping.StatusLabelInbox)
	return union
}

// partition splits items into order-preserving groups of at most size.
func partition(items []mapping.Item, size int) [][]mapping.Item {
	if size <= 0 {
		size = 1
	}
	var batches [][]mapping.Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

func statusLabel(archived bool) string {
	if archived {
		return mapping.StatusLabelArchived
	}
	return mapping.StatusLabelInbox
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("inter-batch pause canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
