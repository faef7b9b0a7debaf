package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Summary is the machine-readable run digest written next to the CSV trail.
type Summary struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	DryRun      bool      `json:"dry_run"`
	DurationMS  int64     `json:"duration_ms"`
	ReportPath  string    `json:"report_path,omitempty"`
	Stats       Stats     `json:"stats"`
}

func (s *Service) writeSummary(ctx context.Context, spec Spec, started time.Time, res *Result) {
	if spec.SummaryPath == "" {
		return
	}
	summary := Summary{
		RunID:       s.RunID,
		GeneratedAt: s.Clock().UTC(),
		DryRun:      spec.DryRun,
		DurationMS:  s.Clock().Sub(started).Milliseconds(),
		ReportPath:  res.ReportPath,
		Stats:       res.Stats,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		s.Logger.ErrorContext(ctx, "summary encode failed", "error", err)
		return
	}
	// same policy as the CSV: persistence failure never fails the run
	if err := os.WriteFile(spec.SummaryPath, append(data, '\n'), 0o644); err != nil {
		s.Logger.ErrorContext(ctx, "summary write failed", "path", spec.SummaryPath, "error", err)
		return
	}
	s.Logger.InfoContext(ctx, "summary written", "path", spec.SummaryPath)
}

// PrintHuman writes a short readable digest of the run to w.
func PrintHuman(res Result, dryRun bool, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	st := res.Stats
	_, err := fmt.Fprintf(w,
		"frontporter %s: %d conversations, %d matched, %d labeled (%d archived, %d inbox), %d skipped, %d failed\nreport: %s\n",
		mode, st.Total, st.Matched, st.Labeled, st.Archived, st.Inbox, st.Skipped, st.Failed, res.ReportPath)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
