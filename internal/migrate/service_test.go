package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/joshsymonds/frontporter/internal/front"
	"github.com/joshsymonds/frontporter/internal/gmail"
	"github.com/joshsymonds/frontporter/internal/mapping"
)

type fakeSource struct {
	convs []front.Conversation
	err   error
}

func (f *fakeSource) ListConversations(ctx context.Context, inboxID string) ([]front.Conversation, error) {
	_ = ctx
	_ = inboxID
	if f.err != nil {
		return nil, f.err
	}
	return f.convs, nil
}

type modifyCall struct {
	thread gmail.ThreadID
	ops    gmail.ModifyOps
}

type fakeTarget struct {
	matches map[string]*gmail.Match
	findErr map[string]error

	findCalls        []string
	ensureLabelCalls []string
	ensureCalls      [][]string
	modifyCalls      []modifyCall
	batchCalls       [][]gmail.MessageID

	modifyErr error
	ensureErr error
}

func (f *fakeTarget) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	return nil, nil
}

func (f *fakeTarget) FindByMessageID(ctx context.Context, messageID string) (*gmail.Match, error) {
	_ = ctx
	f.findCalls = append(f.findCalls, messageID)
	if err, ok := f.findErr[messageID]; ok {
		return nil, err
	}
	return f.matches[messageID], nil
}

func (f *fakeTarget) EnsureLabel(ctx context.Context, name string) (gmail.Label, error) {
	_ = ctx
	f.ensureLabelCalls = append(f.ensureLabelCalls, name)
	return gmail.Label{ID: labelID(name), Name: name, Kind: gmail.LabelKindUser}, nil
}

func (f *fakeTarget) EnsureLabels(ctx context.Context, names []string) (map[string]gmail.LabelID, error) {
	_ = ctx
	f.ensureCalls = append(f.ensureCalls, slices.Clone(names))
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	out := make(map[string]gmail.LabelID, len(names))
	for _, name := range names {
		out[name] = labelID(name)
	}
	return out, nil
}

func (f *fakeTarget) ModifyThread(ctx context.Context, threadID gmail.ThreadID, ops gmail.ModifyOps) error {
	_ = ctx
	f.modifyCalls = append(f.modifyCalls, modifyCall{thread: threadID, ops: ops})
	return f.modifyErr
}

func (f *fakeTarget) BatchModify(ctx context.Context, ids []gmail.MessageID, ops gmail.ModifyOps) error {
	_ = ctx
	_ = ops
	f.batchCalls = append(f.batchCalls, slices.Clone(ids))
	return nil
}

func labelID(name string) gmail.LabelID {
	return gmail.LabelID("L_" + name)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(ctx context.Context, d time.Duration) error {
	_ = ctx
	_ = d
	return nil
}

func newTestService(source Source, target gmail.Client) *Service {
	svc := NewService(source, target, slogDiscard())
	svc.Clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	svc.Sleep = noSleep
	return svc
}

func emailConv(id, subject, status, messageID string, tags ...string) front.Conversation {
	conv := front.Conversation{
		ID:        id,
		Subject:   subject,
		Status:    status,
		CreatedAt: 1690000000,
	}
	for _, tag := range tags {
		conv.Tags = append(conv.Tags, front.Tag{Name: tag})
	}
	if messageID != "" {
		conv.Messages = []front.Message{{
			Type:     front.MessageTypeEmail,
			Metadata: front.Metadata{Headers: map[string]string{"message_id": "<" + messageID + ">"}},
		}}
	}
	return conv
}

func TestDryRunArchivedConversation(t *testing.T) {
	target := &fakeTarget{matches: map[string]*gmail.Match{
		"m1@x": {MessageID: "gm1", ThreadID: "gt1", ResultCount: 1},
	}}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "Renewal", front.StatusArchived, "m1@x", "Important"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{DryRun: true, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(target.ensureCalls) != 0 || len(target.ensureLabelCalls) != 0 {
		t.Fatalf("dry run ensured labels: %v %v", target.ensureCalls, target.ensureLabelCalls)
	}
	if len(target.modifyCalls) != 0 || len(target.batchCalls) != 0 {
		t.Fatalf("dry run issued mutations")
	}

	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row.Action != ActionDryRun {
		t.Fatalf("unexpected action %q", row.Action)
	}
	wantAdd := []string{"Front/Important", "Front/Status/Archived"}
	if !slices.Equal(row.LabelsAdded, wantAdd) {
		t.Fatalf("labels added %v, want %v", row.LabelsAdded, wantAdd)
	}
	wantRemove := []string{"Front/Status/Inbox"}
	if !slices.Equal(row.LabelsRemoved, wantRemove) {
		t.Fatalf("labels removed %v, want %v", row.LabelsRemoved, wantRemove)
	}
	if res.Stats.Matched != 1 || res.Stats.Labeled != 0 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
}

func TestMissingIdentifierSkippedWithoutLookup(t *testing.T) {
	target := &fakeTarget{}
	source := &fakeSource{convs: []front.Conversation{
		{ID: "cnv_1", Subject: "SMS thread", Status: front.StatusAssigned,
			Messages: []front.Message{{Type: "sms"}}},
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{DryRun: true, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(target.findCalls) != 0 {
		t.Fatalf("lookup issued for item without identifier")
	}
	row := res.Rows[0]
	if row.Action != ActionSkipped || row.Reason != "missing identifier" {
		t.Fatalf("unexpected outcome %q/%q", row.Action, row.Reason)
	}
	if row.Method != MatchNone {
		t.Fatalf("unexpected method %q", row.Method)
	}
	if res.Stats.Skipped != 1 || res.Stats.Processed != 0 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
}

func TestNoMatchLeavesTargetUntouched(t *testing.T) {
	target := &fakeTarget{} // no matches configured
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "Lost", front.StatusAssigned, "ghost@x"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{DryRun: true, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(target.findCalls); got != 1 {
		t.Fatalf("expected exactly 1 lookup, got %d", got)
	}
	if len(target.modifyCalls) != 0 {
		t.Fatalf("mutations issued for unmatched item")
	}
	if row := res.Rows[0]; row.Action != ActionNoMatch || row.Method != MatchByMessageID {
		t.Fatalf("unexpected outcome %+v", row)
	}
	if res.Stats.NoMatch != 1 || res.Stats.Matched != 0 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
}

func TestLiveRunAppliesLabels(t *testing.T) {
	target := &fakeTarget{matches: map[string]*gmail.Match{
		"m1@x": {MessageID: "gm1", ThreadID: "gt1", ResultCount: 1},
		"m2@x": {MessageID: "gm2", ThreadID: "gt2", ResultCount: 1},
	}}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "Archived one", front.StatusArchived, "m1@x", "Important"),
		emailConv("cnv_2", "Open one", front.StatusAssigned, "m2@x", "Billing"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(target.ensureCalls) != 1 {
		t.Fatalf("expected 1 EnsureLabels call, got %d", len(target.ensureCalls))
	}
	union := target.ensureCalls[0]
	for _, want := range []string{"Front/Important", "Front/Billing", "Front/Status/Archived", "Front/Status/Inbox"} {
		if !slices.Contains(union, want) {
			t.Fatalf("union missing %q: %v", want, union)
		}
	}

	if len(target.modifyCalls) != 2 {
		t.Fatalf("expected 2 thread mutations, got %d", len(target.modifyCalls))
	}
	first := target.modifyCalls[0]
	if first.thread != "gt1" {
		t.Fatalf("unexpected thread %q", first.thread)
	}
	wantAdd := []gmail.LabelID{labelID("Front/Important"), labelID("Front/Status/Archived")}
	if !slices.Equal(first.ops.AddLabelIDs, wantAdd) {
		t.Fatalf("add ids %v, want %v", first.ops.AddLabelIDs, wantAdd)
	}
	wantRemove := []gmail.LabelID{labelID("Front/Status/Inbox")}
	if !slices.Equal(first.ops.RemoveLabelIDs, wantRemove) {
		t.Fatalf("remove ids %v, want %v", first.ops.RemoveLabelIDs, wantRemove)
	}

	st := res.Stats
	if st.Labeled != 2 || st.Archived != 1 || st.Inbox != 1 || st.Failed != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	for _, row := range res.Rows {
		if row.Action != ActionApplied {
			t.Fatalf("unexpected action %q", row.Action)
		}
	}
}

func TestSkipArchivedFilter(t *testing.T) {
	target := &fakeTarget{matches: map[string]*gmail.Match{
		"m2@x": {MessageID: "gm2", ThreadID: "gt2", ResultCount: 1},
	}}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "Old", front.StatusArchived, "m1@x"),
		emailConv("cnv_2", "Open", front.StatusAssigned, "m2@x"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{DryRun: true, SkipArchived: true, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(target.findCalls, []string{"m2@x"}) {
		t.Fatalf("unexpected lookups %v", target.findCalls)
	}
	if res.Rows[0].Action != ActionSkipped || res.Rows[1].Action != ActionDryRun {
		t.Fatalf("unexpected actions %q, %q", res.Rows[0].Action, res.Rows[1].Action)
	}
}

func TestLookupErrorFailsItemNotRun(t *testing.T) {
	target := &fakeTarget{
		matches: map[string]*gmail.Match{"m2@x": {MessageID: "gm2", ThreadID: "gt2", ResultCount: 1}},
		findErr: map[string]error{"m1@x": errors.New("backend exploded")},
	}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "Bad", front.StatusAssigned, "m1@x"),
		emailConv("cnv_2", "Good", front.StatusAssigned, "m2@x"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{DryRun: true, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("per-item failure aborted the run: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected a row per item, got %d", len(res.Rows))
	}
	if res.Rows[0].Action != ActionFailed || !strings.Contains(res.Rows[0].Reason, "backend exploded") {
		t.Fatalf("unexpected failed row %+v", res.Rows[0])
	}
	if res.Rows[1].Action != ActionDryRun {
		t.Fatalf("healthy item affected by neighbor failure: %+v", res.Rows[1])
	}
	if res.Stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
}

func TestWriteGuardViolationAbortsRun(t *testing.T) {
	target := &fakeTarget{
		matches:   map[string]*gmail.Match{"m1@x": {MessageID: "gm1", ThreadID: "gt1", ResultCount: 1}},
		modifyErr: &gmail.BlockedWriteError{Op: "ModifyThread"},
	}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "One", front.StatusAssigned, "m1@x"),
		emailConv("cnv_2", "Two", front.StatusAssigned, "m2@x"),
	}}
	svc := newTestService(source, target)

	res, err := svc.Run(context.Background(), Spec{ReportDir: t.TempDir()})
	if err == nil {
		t.Fatalf("expected run abort on blocked write")
	}
	var blocked *gmail.BlockedWriteError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedWriteError, got %v", err)
	}
	// the partial trail is still flushed
	if len(res.Rows) != 1 || res.ReportPath == "" {
		t.Fatalf("partial report not flushed: rows=%d path=%q", len(res.Rows), res.ReportPath)
	}
}

func TestSourceAuthErrorAbortsRun(t *testing.T) {
	source := &fakeSource{err: &front.AuthError{StatusCode: 401, Body: "bad token"}}
	svc := newTestService(source, &fakeTarget{})

	_, err := svc.Run(context.Background(), Spec{DryRun: true, ReportDir: t.TempDir()})
	var authErr *front.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError to surface, got %v", err)
	}
}

func TestReconcileFailureAbortsLiveRun(t *testing.T) {
	target := &fakeTarget{ensureErr: errors.New("labels api down")}
	source := &fakeSource{convs: []front.Conversation{
		emailConv("cnv_1", "One", front.StatusAssigned, "m1@x", "Important"),
	}}
	svc := newTestService(source, target)

	_, err := svc.Run(context.Background(), Spec{ReportDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "reconcile label taxonomy") {
		t.Fatalf("expected reconciliation failure, got %v", err)
	}
	if len(target.findCalls) != 0 {
		t.Fatalf("items processed despite failed reconciliation")
	}
}

func TestBatchPauseBetweenGroups(t *testing.T) {
	target := &fakeTarget{}
	var convs []front.Conversation
	for i := 0; i < 5; i++ {
		convs = append(convs, emailConv(fmt.Sprintf("cnv_%d", i), "s", front.StatusAssigned, fmt.Sprintf("m%d@x", i)))
	}
	source := &fakeSource{convs: convs}
	svc := newTestService(source, target)

	var pauses []time.Duration
	svc.Sleep = func(ctx context.Context, d time.Duration) error {
		_ = ctx
		pauses = append(pauses, d)
		return nil
	}

	if _, err := svc.Run(context.Background(), Spec{DryRun: true, BatchSize: 2, ReportDir: t.TempDir()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	// 5 items in batches of 2 -> 3 batches -> 2 pauses, none after the last
	if len(pauses) != 2 {
		t.Fatalf("expected 2 pauses, got %d", len(pauses))
	}
	for _, d := range pauses {
		if d != time.Second {
			t.Fatalf("unexpected pause %v", d)
		}
	}
}

func TestRowOrderAndProgress(t *testing.T) {
	target := &fakeTarget{}
	var convs []front.Conversation
	for i := 0; i < 7; i++ {
		convs = append(convs, emailConv(fmt.Sprintf("cnv_%02d", i), "s", front.StatusAssigned, fmt.Sprintf("m%d@x", i)))
	}
	source := &fakeSource{convs: convs}
	svc := newTestService(source, target)

	var progressCalls int
	svc.Progress = func(st Stats) {
		_ = st
		progressCalls++
	}

	res, err := svc.Run(context.Background(), Spec{DryRun: true, BatchSize: 3, ReportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Rows) != len(convs) {
		t.Fatalf("row count %d != item count %d", len(res.Rows), len(convs))
	}
	for i, row := range res.Rows {
		if want := fmt.Sprintf("cnv_%02d", i); row.SourceID != want {
			t.Fatalf("row %d out of order: %q", i, row.SourceID)
		}
	}
	if progressCalls != len(convs) {
		t.Fatalf("expected %d progress updates, got %d", len(convs), progressCalls)
	}
}

func TestPartition(t *testing.T) {
	for length := 0; length <= 7; length++ {
		items := make([]mapping.Item, length)
		for i := range items {
			items[i].SourceID = fmt.Sprintf("cnv_%d", i)
		}
		for size := 1; size <= 4; size++ {
			batches := partition(items, size)
			var flat []string
			for _, batch := range batches {
				if len(batch) == 0 || len(batch) > size {
					t.Fatalf("len=%d size=%d: bad batch size %d", length, size, len(batch))
				}
				for _, item := range batch {
					flat = append(flat, item.SourceID)
				}
			}
			if len(flat) != length {
				t.Fatalf("len=%d size=%d: covered %d items", length, size, len(flat))
			}
			for i, id := range flat {
				if want := fmt.Sprintf("cnv_%d", i); id != want {
					t.Fatalf("len=%d size=%d: order broken at %d: %q", length, size, i, id)
				}
			}
		}
	}
}
