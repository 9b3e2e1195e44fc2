package domain

import "time"

// JobRecord is the structured result of fetching one job posting. The
// processor never looks inside it beyond ID; sinks decide what to persist.
type JobRecord struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`

	// RawHTML is the response body as fetched; the snapshot sink stores it.
	RawHTML []byte `json:"-"`

	Title            string        `json:"title,omitempty"`
	Company          string        `json:"company,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	Responsibilities []string      `json:"responsibilities,omitempty"`
	Qualifications   []string      `json:"qualifications,omitempty"`
	Benefits         []string      `json:"benefits,omitempty"`
	SeniorityLevel   string        `json:"seniority_level,omitempty"`
	EmploymentType   string        `json:"employment_type,omitempty"`
	JobFunctions     []string      `json:"job_functions,omitempty"`
	Industries       []string      `json:"industries,omitempty"`
	Compensation     *Compensation `json:"compensation,omitempty"`

	// Text is the cleaned plain-text rendering of the posting body.
	Text string `json:"-"`
}

// Compensation is the optional pay section of a posting.
type Compensation struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SalaryRange string `json:"salary_range,omitempty"`
}
