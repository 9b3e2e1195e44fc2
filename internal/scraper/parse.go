package scraper

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ricirt/job-harvester/internal/domain"
)

var (
	spaceRun       = regexp.MustCompile(`\s+`)
	headerTrailer  = regexp.MustCompile(`[:\-–]+$`)
	industrySplit  = regexp.MustCompile(`,|/| and `)
	sectionAliases = map[string]string{
		"what you'll do":   "responsibilities",
		"responsibilities": "responsibilities",
		"what we look for": "qualifications",
		"requirements":     "qualifications",
		"qualifications":   "qualifications",
		"what we offer":    "benefits",
		"benefits":         "benefits",
	}
)

// Parse extracts a JobRecord from a posting page. The returned record has
// SourceURL, RawHTML and every field found in the page set; ID and FetchedAt
// are left to the caller.
func Parse(sourceURL string, body []byte) (*domain.JobRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("br").ReplaceWithHtml("\n")

	rec := &domain.JobRecord{
		SourceURL: sourceURL,
		RawHTML:   body,
		Title:     cleanText(doc.Find("h1").First().Text()),
	}

	details := doc.Find("div.decorated-job-posting__details").First()
	if details.Length() == 0 {
		details = doc.Selection
	}

	extractSections(details, rec)
	extractCriteria(details, rec)
	rec.Compensation = extractCompensation(details)

	if company := doc.Find("[data-company-name], a.topcard__org-name-link, span.topcard__flavor").First(); company.Length() > 0 {
		rec.Company = cleanText(company.Text())
	}

	rec.Text = textWithNewlines(details)
	return rec, nil
}

func extractSections(root *goquery.Selection, rec *domain.JobRecord) {
	desc := root.Find("div.description__text--rich, div.description__text").First()
	if desc.Length() == 0 {
		return
	}
	rich := desc.Find(".show-more-less-html__markup").First()
	if rich.Length() == 0 {
		rich = desc
	}

	type section struct {
		key   string
		items []string
	}
	var (
		sections []section
		summary  []string
	)

	rich.Contents().Each(func(_ int, node *goquery.Selection) {
		if header, ok := sectionHeader(node); ok {
			sections = append(sections, section{key: header})
			return
		}
		if goquery.NodeName(node) == "ul" && len(sections) > 0 {
			last := &sections[len(sections)-1]
			last.items = append(last.items, listItems(node)...)
			return
		}
		if len(sections) == 0 {
			if text := cleanText(textWithNewlines(node)); text != "" {
				summary = append(summary, text)
			}
		}
	})

	rec.Summary = strings.Join(summary, "\n\n")
	for _, s := range sections {
		switch s.key {
		case "responsibilities":
			rec.Responsibilities = s.items
		case "qualifications":
			rec.Qualifications = s.items
		case "benefits":
			rec.Benefits = s.items
		}
	}
}

// sectionHeader reports whether node opens a description section: a bare
// <strong>, or a paragraph holding nothing but one.
func sectionHeader(node *goquery.Selection) (string, bool) {
	switch goquery.NodeName(node) {
	case "strong", "b":
	case "p":
		strong := node.ChildrenFiltered("strong, b")
		if strong.Length() != 1 || cleanText(strong.Text()) != cleanText(node.Text()) {
			return "", false
		}
	default:
		return "", false
	}
	return normalizeHeader(node.Text()), true
}

func normalizeHeader(text string) string {
	t := strings.ToLower(cleanText(text))
	t = cleanText(headerTrailer.ReplaceAllString(t, ""))
	if alias, ok := sectionAliases[t]; ok {
		return alias
	}
	return t
}

func listItems(ul *goquery.Selection) []string {
	var items []string
	ul.Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := cleanText(textWithNewlines(li)); text != "" {
			items = append(items, text)
		}
	})
	return items
}

func extractCriteria(root *goquery.Selection, rec *domain.JobRecord) {
	root.Find("ul.description__job-criteria-list li.description__job-criteria-item").Each(func(_ int, li *goquery.Selection) {
		header := strings.ToLower(cleanText(li.Find("h3.description__job-criteria-subheader").Text()))
		value := cleanText(li.Find("span.description__job-criteria-text").Text())
		if header == "" {
			return
		}

		switch {
		case strings.Contains(header, "seniority"):
			rec.SeniorityLevel = value
		case strings.Contains(header, "employment"):
			rec.EmploymentType = value
		case strings.Contains(header, "job function"):
			rec.JobFunctions = splitNonEmpty(strings.Split(value, " and "))
		case strings.Contains(header, "industr"):
			rec.Industries = splitNonEmpty(industrySplit.Split(value, -1))
		}
	})
}

func extractCompensation(root *goquery.Selection) *domain.Compensation {
	sec := root.Find("section.compensation").First()
	if sec.Length() == 0 {
		return nil
	}
	comp := &domain.Compensation{
		Title:       cleanText(sec.Find("h2").First().Text()),
		Description: cleanText(sec.Find("p.compensation__description").First().Text()),
		SalaryRange: cleanText(sec.Find(".compensation__salary").First().Text()),
	}
	if *comp == (domain.Compensation{}) {
		return nil
	}
	return comp
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func splitNonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// textWithNewlines joins the text nodes under sel one per line, dropping
// blank lines and script or style content.
func textWithNewlines(sel *goquery.Selection) string {
	var chunks []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				chunks = append(chunks, c.Text())
			case "script", "style", "#comment":
			default:
				walk(c)
			}
		})
	}
	if goquery.NodeName(sel) == "#text" {
		chunks = append(chunks, sel.Text())
	} else {
		walk(sel)
	}

	var lines []string
	for _, line := range strings.Split(strings.Join(chunks, "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
