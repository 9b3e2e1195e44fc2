package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// WorkItem is one pending unit of work. URL is the unique key; everything else
// is bookkeeping kept by the queue backend.
type WorkItem struct {
	URL        string    `json:"url"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Failures   int       `json:"failures"`
}

// ID returns the human-readable identifier used to name outputs.
func (w WorkItem) ID() string {
	return DeriveID(w.URL)
}

// DeriveID returns the last non-empty path segment of rawURL, which for
// LinkedIn job links (.../jobs/view/<job_id>/) is the job id. Characters that
// are unsafe in file names are replaced with '_'.
func DeriveID(rawURL string) string {
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		s = u.Host + u.Path
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "_"
	}
	return unsafeIDChars.ReplaceAllString(s, "_")
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// MaxURLLength bounds what the queue accepts as a key.
const MaxURLLength = 2048

// NormalizeURL trims rawURL and checks that it is an absolute http(s) URL.
// The fragment is dropped; the query is kept because some sources need it.
func NormalizeURL(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", ErrEmptyURL
	}
	if len(s) > MaxURLLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidURL, MaxURLLength)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Fragment = ""
	return u.String(), nil
}

var linkedInJobURL = regexp.MustCompile(`(?i)https://www\.linkedin\.com/(?:comm/)?jobs/view/(\d+)`)

// ExtractJobURLs finds LinkedIn job links in free text (mail bodies, exports)
// and rewrites them to the canonical https://www.linkedin.com/jobs/view/<id>/
// form. Order of first appearance is kept and duplicates are dropped.
func ExtractJobURLs(body string) []string {
	matches := linkedInJobURL.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		u := "https://www.linkedin.com/jobs/view/" + m[1] + "/"
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
