// internal/service/renderer.go
package service

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/unclebandit/outreach-service/internal/model"
)

const KindManagerReport = "manager_report"

// Template is one named message template using {key} placeholders.
type Template struct {
	Subject string
	Body    string
	HTML    string
}

// Renderer turns a template kind plus substitutions into message content.
type Renderer struct {
	templates map[string]Template
}

func NewRenderer() *Renderer {
	return &Renderer{templates: map[string]Template{
		KindManagerReport: {
			Subject: "[{frequency_label} report] Outreach summary {period_label}",
			Body:    "Hello {recipient_name},\n\nHere is the {frequency} outreach report for {period_label}.\n\n{sections}\n\nThis report was generated automatically.",
			HTML:    "<p>Hello {recipient_name_html},</p><p>Here is the {frequency} outreach report for {period_label_html}.</p>{sections_html}<p><small>This report was generated automatically.</small></p>",
		},
	}}
}

// Register adds or replaces a template kind.
func (r *Renderer) Register(kind string, tmpl Template) {
	r.templates[kind] = tmpl
}

func (r *Renderer) Render(kind string, subs map[string]string) (model.Content, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return model.Content{}, fmt.Errorf("unknown template kind %q", kind)
	}
	var c model.Content
	var err error
	if c.Subject, err = RenderTemplate(tmpl.Subject, subs); err != nil {
		return model.Content{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if c.Body, err = RenderTemplate(tmpl.Body, subs); err != nil {
		return model.Content{}, fmt.Errorf("render %s body: %w", kind, err)
	}
	if tmpl.HTML != "" {
		if c.HTMLBody, err = RenderTemplate(tmpl.HTML, subs); err != nil {
			return model.Content{}, fmt.Errorf("render %s html: %w", kind, err)
		}
	}
	return c, nil
}

// RenderReport renders the manager report for cfg over the stats period.
func (r *Renderer) RenderReport(cfg *model.ReportScheduleConfig, stats *model.Stats) (model.Content, error) {
	return r.Render(KindManagerReport, ReportSubstitutions(cfg, stats))
}

// ReportSubstitutions builds the placeholder map for a manager report.
// Sections are included according to the config's inclusion flags.
func ReportSubstitutions(cfg *model.ReportScheduleConfig, stats *model.Stats) map[string]string {
	loc := cfg.Location()
	name := cfg.RecipientName
	if name == "" {
		name = cfg.RecipientAddress
	}
	period := periodLabel(cfg.Frequency, stats, loc)

	var text, htmlOut strings.Builder
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&text, "%s\n", strings.ToUpper(title))
		fmt.Fprintf(&htmlOut, "<h3>%s</h3><ul>", html.EscapeString(title))
		for _, l := range lines {
			fmt.Fprintf(&text, "  - %s\n", l)
			fmt.Fprintf(&htmlOut, "<li>%s</li>", html.EscapeString(l))
		}
		text.WriteString("\n")
		htmlOut.WriteString("</ul>")
	}

	if cfg.IncludeStats {
		lines := []string{
			fmt.Sprintf("Total contacts: %d", stats.ContactsTotal),
		}
		statuses := make([]string, 0, len(stats.ContactsByStatus))
		for s := range stats.ContactsByStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			lines = append(lines, fmt.Sprintf("%s: %d", s, stats.ContactsByStatus[s]))
		}
		for _, cc := range stats.ContactsByCountry {
			lines = append(lines, fmt.Sprintf("Country %s: %d", cc.Country, cc.Count))
		}
		section("Contact overview", lines)
	}
	if cfg.IncludeNewContacts {
		section("New contacts", []string{
			fmt.Sprintf("Added in period: %d", stats.NewContactsInPeriod),
		})
	}
	if cfg.IncludeEmailActivity {
		lines := []string{
			fmt.Sprintf("Emails sent in period: %d (all time %d)", stats.SentInPeriod, stats.SentTotal),
			fmt.Sprintf("Replies in period: %d (all time %d)", stats.RepliesInPeriod, stats.RepliesTotal),
			fmt.Sprintf("Reply rate: %.1f%%", stats.ReplyRate),
			fmt.Sprintf("Unique contacts reached: %d", stats.UniqueContacted),
		}
		for _, d := range stats.SentByDay {
			lines = append(lines, fmt.Sprintf("%s: %d sent", d.Date, d.Count))
		}
		section("Email activity", lines)
	}
	if cfg.IncludeTopContacts && len(stats.TopContacts) > 0 {
		lines := make([]string, 0, len(stats.TopContacts))
		for i, c := range stats.TopContacts {
			lines = append(lines, fmt.Sprintf("%d. %s <%s> score %d (%s)", i+1, c.DisplayName, c.Address, c.Score, c.Status))
		}
		section("Top contacts", lines)
	}

	sections := strings.TrimSpace(text.String())
	if sections == "" {
		sections = "No sections selected."
	}
	sectionsHTML := htmlOut.String()
	if sectionsHTML == "" {
		sectionsHTML = "<p>No sections selected.</p>"
	}

	return map[string]string{
		"recipient_name":      name,
		"recipient_name_html": html.EscapeString(name),
		"frequency":           cfg.Frequency,
		"frequency_label":     frequencyLabel(cfg.Frequency),
		"period_label":        period,
		"period_label_html":   html.EscapeString(period),
		"sections":            sections,
		"sections_html":       sectionsHTML,
	}
}

func frequencyLabel(freq string) string {
	switch freq {
	case model.FrequencyDaily:
		return "Daily"
	case model.FrequencyWeekly:
		return "Weekly"
	case model.FrequencyMonthly:
		return "Monthly"
	}
	return freq
}

func periodLabel(freq string, stats *model.Stats, loc *time.Location) string {
	start, end := stats.PeriodStart.In(loc), stats.PeriodEnd.In(loc)
	switch freq {
	case model.FrequencyWeekly:
		return start.Format("02/01") + " - " + end.Format("02/01/2006")
	case model.FrequencyMonthly:
		return start.Format("01/2006")
	}
	return start.Format("02/01/2006")
}
