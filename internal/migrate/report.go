package migrate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Action is the terminal outcome recorded for one item.
type Action string

const (
	ActionApplied Action = "applied"
	ActionDryRun  Action = "dry_run"
	ActionSkipped Action = "skipped"
	ActionNoMatch Action = "no_match"
	ActionFailed  Action = "failed"
)

// MatchMethod records how the target-side identity was resolved. Exact
// Message-ID lookup is the only supported method.
type MatchMethod string

const (
	MatchByMessageID MatchMethod = "message-id"
	MatchNone        MatchMethod = "none"
)

// ReportRow is one line of the per-item audit trail. Rows are appended by the
// orchestrator in item order and read once by the writer at end of run.
type ReportRow struct {
	SourceID       string
	Subject        string
	CreatedAt      time.Time
	Archived       bool
	Method         MatchMethod
	ResultCount    int
	GmailMessageID string
	GmailThreadID  string
	LabelsAdded    []string
	LabelsRemoved  []string
	Action         Action
	Reason         string
}

const (
	reportPrefix       = "front-migration-report-"
	subjectPlaceholder = "(no subject)"
)

var reportHeader = []string{
	"front_conversation_id", "subject", "created_at", "archived",
	"match_method", "lookup_results", "gmail_message_id", "gmail_thread_id",
	"labels_added", "labels_removed", "action", "reason",
}

// ReportFileName derives the per-run file name: fixed prefix plus an
// ISO-8601 timestamp with colons and periods replaced so the name is safe on
// every filesystem.
func ReportFileName(ts time.Time) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return reportPrefix + stamp + ".csv"
}

// WriteReport serializes rows as CSV with every field double-quoted and
// internal quotes doubled. Multi-valued label fields are semicolon-joined.
func WriteReport(w io.Writer, rows []ReportRow) error {
	if err := writeRecord(w, reportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		subject := row.Subject
		if strings.TrimSpace(subject) == "" {
			subject = subjectPlaceholder
		}
		record := []string{
			row.SourceID,
			subject,
			row.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(row.Archived),
			string(row.Method),
			strconv.Itoa(row.ResultCount),
			row.GmailMessageID,
			row.GmailThreadID,
			strings.Join(row.LabelsAdded, ";"),
			strings.Join(row.LabelsRemoved, ";"),
			string(row.Action),
			row.Reason,
		}
		if err := writeRecord(w, record); err != nil {
			return err
		}
	}
	return nil
}

// WriteReportFile writes the report into dir and returns the full path.
func WriteReportFile(dir string, ts time.Time, rows []ReportRow) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, ReportFileName(ts))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteReport(f, rows); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync report %s: %w", path, err)
	}
	return path, nil
}

// writeRecord emits one line with unconditional quoting. encoding/csv only
// quotes when it must, and the audit format requires every field quoted.
func writeRecord(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report record: %w", err)
	}
	return nil
}
