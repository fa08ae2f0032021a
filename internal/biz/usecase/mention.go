package usecase

import (
	"regexp"
	"strings"
)

// MentionDetector maps free text to the configured products it references
type MentionDetector struct {
	apps     []string
	patterns []*regexp.Regexp // nil unless word-boundary matching is enabled
}

// NewMentionDetector creates a detector over apps in the given order.
// With wordBoundary set, "coral" no longer matches "cora".
func NewMentionDetector(apps []string, wordBoundary bool) *MentionDetector {
	d := &MentionDetector{}
	seen := make(map[string]bool)
	for _, app := range apps {
		app = strings.ToLower(strings.TrimSpace(app))
		if app == "" || seen[app] {
			continue
		}
		seen[app] = true
		d.apps = append(d.apps, app)
		if wordBoundary {
			d.patterns = append(d.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(app)+`\b`))
		}
	}
	return d
}

// Apps returns the configured products
func (d *MentionDetector) Apps() []string {
	return d.apps
}

// Detect returns the products mentioned in text, each at most once, in configured order
func (d *MentionDetector) Detect(text string) []string {
	if text == "" {
		return nil
	}

	var found []string
	if d.patterns != nil {
		for i, p := range d.patterns {
			if p.MatchString(text) {
				found = append(found, d.apps[i])
			}
		}
		return found
	}

	lower := strings.ToLower(text)
	for _, app := range d.apps {
		if strings.Contains(lower, app) {
			found = append(found, app)
		}
	}
	return found
}
