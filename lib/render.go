package lib

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/chapterbase/updatewatch/lib/models"
)

var (
	//go:embed digest.html
	digestHTML     string
	digestTemplate = template.Must(template.New("digest.html").Parse(digestHTML))
)

type digestView struct {
	Frequency      models.Frequency
	Sections       []digestSection
	DashboardURL   string
	PreferencesURL string
}

func renderHTMLBody(sub *models.PartnerSubscription, sections []digestSection, baseURL string) (string, error) {
	view := digestView{
		Frequency:      sub.Frequency,
		Sections:       sections,
		DashboardURL:   baseURL + "/dashboard",
		PreferencesURL: baseURL + "/preferences",
	}

	buf := new(strings.Builder)
	if err := digestTemplate.Execute(buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderTextBody walks the same sections in the same order as the HTML
// template, so both bodies carry identical logical content.
func renderTextBody(sub *models.PartnerSubscription, sections []digestSection, baseURL string) string {
	buf := new(strings.Builder)
	buf.WriteString("CHAPTERBASE UPDATES\n")
	fmt.Fprintf(buf, "Your %s digest\n", sub.Frequency)
	buf.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, section := range sections {
		buf.WriteString(strings.ToUpper(section.Label) + "\n")
		buf.WriteString(strings.Repeat("-", 50) + "\n")

		for _, evt := range section.Events {
			fmt.Fprintf(buf, "* %s\n", evt.ChangeSummary)
			if evt.UniversityName != "" {
				fmt.Fprintf(buf, "  Location: %s", evt.UniversityName)
				if evt.UniversityState != "" {
					fmt.Fprintf(buf, " (%s)", evt.UniversityState)
				}
				buf.WriteString("\n")
			}
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	fmt.Fprintf(buf, "View full details: %s/dashboard\n\n", baseURL)
	fmt.Fprintf(buf, "Manage preferences: %s/preferences\n", baseURL)
	return buf.String()
}
