package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ricirt/job-harvester/internal/domain"
)

// SnapshotSink writes the raw page to <dir>/<id>.html.
type SnapshotSink struct {
	dir string
}

func NewSnapshotSink(dir string) *SnapshotSink {
	return &SnapshotSink{dir: dir}
}

func (s *SnapshotSink) Name() string { return "html-snapshot" }

func (s *SnapshotSink) Write(_ context.Context, rec *domain.JobRecord) error {
	if err := writeFileAtomic(s.dir, rec.ID+".html", rec.RawHTML); err != nil {
		return domain.StorageFailure("write html snapshot", err)
	}
	return nil
}

// SummarySink writes a human-readable rendering to <dir>/<id>.txt.
type SummarySink struct {
	dir string
}

func NewSummarySink(dir string) *SummarySink {
	return &SummarySink{dir: dir}
}

func (s *SummarySink) Name() string { return "text-summary" }

func (s *SummarySink) Write(_ context.Context, rec *domain.JobRecord) error {
	if err := writeFileAtomic(s.dir, rec.ID+".txt", FormatSummary(rec)); err != nil {
		return domain.StorageFailure("write text summary", err)
	}
	return nil
}

// FormatSummary renders rec as a metadata block followed by the cleaned
// page text. Empty fields are omitted.
func FormatSummary(rec *domain.JobRecord) []byte {
	var b bytes.Buffer
	b.WriteString("=== Job Metadata ===\n")

	field := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	list := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", key)
		for _, v := range values {
			fmt.Fprintf(&b, "  - %s\n", v)
		}
	}

	field("Title", rec.Title)
	field("Company", rec.Company)
	field("Summary", rec.Summary)
	list("Responsibilities", rec.Responsibilities)
	list("Qualifications", rec.Qualifications)
	list("Benefits", rec.Benefits)
	field("Seniority level", rec.SeniorityLevel)
	field("Employment type", rec.EmploymentType)
	list("Job functions", rec.JobFunctions)
	list("Industries", rec.Industries)
	if c := rec.Compensation; c != nil {
		b.WriteString("Compensation:\n")
		if c.Title != "" {
			fmt.Fprintf(&b, "  compensation_title: %s\n", c.Title)
		}
		if c.Description != "" {
			fmt.Fprintf(&b, "  compensation_description: %s\n", c.Description)
		}
		if c.SalaryRange != "" {
			fmt.Fprintf(&b, "  salary_range: %s\n", c.SalaryRange)
		}
	}
	field("Source URL", rec.SourceURL)

	b.WriteString("\n=== Full Cleaned Job Details Text ===\n")
	b.WriteString(rec.Text)
	return b.Bytes()
}

// writeFileAtomic writes data to dir/name through a synced temp file and a
// rename, so readers see either the old file or the complete new one.
func writeFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}
