package failurelog_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/failurelog"
)

func TestLog_RecordsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "failures.jsonl")
	l, err := failurelog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	l.Record(domain.WorkItem{URL: "https://x/jobs/view/7/"}, domain.PermanentFetch(errors.New("HTTP 404")), 1)
	l.Record(domain.WorkItem{URL: "https://x/jobs/view/8/", Failures: 2}, errors.New("timeout"), 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %q", sc.Text())
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first["url"] != "https://x/jobs/view/7/" || first["id"] != "7" {
		t.Errorf("first entry = %v", first)
	}
	if first["attempts"] != float64(1) || first["permanent"] != true {
		t.Errorf("first entry = %v", first)
	}
	if entries[1]["previous_failures"] != float64(2) || entries[1]["permanent"] != false {
		t.Errorf("second entry = %v", entries[1])
	}
}

func TestLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.jsonl")
	for i := 0; i < 2; i++ {
		l, err := failurelog.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		l.Record(domain.WorkItem{URL: "https://x/1"}, errors.New("boom"), 3)
		_ = l.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("got %d lines, want 2", lines)
	}
}

func TestNop(t *testing.T) {
	l := failurelog.Nop()
	l.Record(domain.WorkItem{URL: "https://x/1"}, errors.New("boom"), 1)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
