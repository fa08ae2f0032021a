package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Classifier ClassifierPrompts `yaml:"classifier"`
	Digest     DigestPrompts     `yaml:"digest"`
}

// ClassifierPrompts contains the per-message classification prompts
type ClassifierPrompts struct {
	SystemPrompt string `yaml:"system_prompt"`
	UserTemplate string `yaml:"user_template"`
}

// DigestPrompts contains the versioned digest templates
type DigestPrompts struct {
	Active       string            `yaml:"active"`
	Templates    map[string]string `yaml:"templates"`
	EmptyMessage string            `yaml:"empty_message"`
}

// LoadPromptsConfig loads prompts configuration from YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/feedback-monitor/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		if b, err := os.ReadFile(p); err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read prompts file %s", configPath)
		}
		log.Debug().Str("component", "config").Msg("no prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	log.Info().Str("component", "config").Str("path", loadedPath).Msg("loading prompts")

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	config.fillDefaults()

	if _, ok := config.Digest.Templates[config.Digest.Active]; !ok {
		return nil, &ConfigError{Field: "digest.active", Message: fmt.Sprintf("unknown template %q", config.Digest.Active)}
	}

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if c.Classifier.SystemPrompt == "" {
		c.Classifier.SystemPrompt = defaults.Classifier.SystemPrompt
	}
	if c.Classifier.UserTemplate == "" {
		c.Classifier.UserTemplate = defaults.Classifier.UserTemplate
	}

	if c.Digest.Templates == nil {
		c.Digest.Templates = make(map[string]string)
	}
	for version, tmpl := range defaults.Digest.Templates {
		if _, ok := c.Digest.Templates[version]; !ok {
			c.Digest.Templates[version] = tmpl
		}
	}
	if c.Digest.Active == "" {
		c.Digest.Active = defaults.Digest.Active
	}
	if c.Digest.EmptyMessage == "" {
		c.Digest.EmptyMessage = defaults.Digest.EmptyMessage
	}
}

// ClassifierSystem returns the classifier instructions for the given products
func (c *PromptsConfig) ClassifierSystem(products []string) string {
	return strings.ReplaceAll(c.Classifier.SystemPrompt, "{{products}}", DisplayList(products))
}

// ClassifierUser returns the per-message prompt
func (c *PromptsConfig) ClassifierUser(apps []string, content string) string {
	result := c.Classifier.UserTemplate
	result = strings.ReplaceAll(result, "{{apps}}", strings.Join(apps, ", "))
	result = strings.ReplaceAll(result, "{{content}}", content)
	return result
}

// DigestPrompt renders the active digest template
func (c *PromptsConfig) DigestPrompt(products []string, messages string) string {
	result := c.Digest.Templates[c.Digest.Active]
	result = strings.ReplaceAll(result, "{{products}}", DisplayList(products))
	result = strings.ReplaceAll(result, "{{messages}}", messages)
	return result
}

// EmptyDigest returns the text used when a window holds no user messages
func (c *PromptsConfig) EmptyDigest() string {
	return c.Digest.EmptyMessage
}

// DisplayList capitalises product names and joins them as "A, B, C, and D"
func DisplayList(products []string) string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		names = append(names, string(unicode.ToUpper(r))+p[size:])
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Classifier: ClassifierPrompts{
			SystemPrompt: `You analyze Discord messages about apps ({{products}}).
Classify the feedback sentiment and extract key points.

Return JSON:
{
  "sentiment": "positive" | "negative" | "neutral" | "mixed",
  "feedback_type": "bug" | "feature_request" | "praise" | "complaint" | "question" | "general",
  "summary": "brief 1-sentence summary of what they're saying about the app",
  "actionable": true | false
}

Examples:
- "Cora keeps crashing when I try to export" → {"sentiment": "negative", "feedback_type": "bug", "summary": "Export feature causing crashes", "actionable": true}
- "I love how Spiral organizes my thoughts!" → {"sentiment": "positive", "feedback_type": "praise", "summary": "User loves the organization feature", "actionable": false}
- "Can Monologue add dark mode?" → {"sentiment": "neutral", "feedback_type": "feature_request", "summary": "Requesting dark mode feature", "actionable": true}`,
			UserTemplate: "Analyze this feedback about {{apps}}:\n\n{{content}}",
		},
		Digest: DigestPrompts{
			Active: "v2",
			Templates: map[string]string{
				"v1": `Analyze these Discord messages from users of our apps: {{products}}.

Messages:
{{messages}}

Provide a summary in this format:

**1. 🚨 URGENT** (any complaints, bugs, crashes, frustrated users - surface ALL of these)
- [Issue description]
  > "[Quote]" — @username in #channel
  > [Link](url)

**2. 💬 FEEDBACK** (genuine feature requests or product suggestions)
- [Request/suggestion]
  > "[Quote]" — @username in #channel
  > [Link](url)

**3. ✨ POSITIVE** (genuine praise)
- [Summary]

RULES:

1. URGENT: Surface ANY complaint, bug report, or frustration. Even one-offs. We don't want to miss these.

2. FEEDBACK: Only include GENUINE product feedback or feature requests. Use judgment to filter out:
   - Jokes or sarcasm
   - Casual chatter / small talk
   - Questions that aren't really requests
   - Off-topic conversations
   - Messages that mention the app but aren't actionable feedback
   Ask yourself: "Would a product manager actually want to act on this?" If no, skip it.

3. POSITIVE: Only include genuine praise. Skip polite acknowledgments or casual "thanks".

4. If a category has nothing meaningful, write "Nothing notable today". This is PREFERRED over surfacing noise.

5. Include Discord message links for URGENT and FEEDBACK items.`,
				"v2": `Analyze these Discord messages from users of our apps: {{products}}.

Messages:
{{messages}}

Provide a summary in this format:

**1. 🔴 URGENT** (complaints, bugs, crashes, frustrated users. Surface ALL of these)
- [Issue description]
  > "[Quote]" — @username in #channel
  > [Jump to message](url)

**2. 💡 FEEDBACK** (genuine feature requests or product suggestions)
- [Request/suggestion]
  > "[Quote]" — @username in #channel
  > [Jump to message](url)

**3. 📝 OTHER** (anything else worth knowing: trends, praise, recurring questions)
- [One or two sentence narrative]

RULES:

1. URGENT: Surface ANY complaint, bug report, or frustration. Even one-offs.

2. FEEDBACK: Only GENUINE product feedback or feature requests. Skip jokes, sarcasm, small talk, off-topic conversation and questions that aren't really requests. Ask yourself: "Would a product manager act on this?" If no, skip it.

3. OTHER: Write it as a short narrative. Do NOT include links or usernames. Only mention things a product team would find genuinely interesting; routine chatter does not qualify.

4. If a section has nothing meaningful, write "Nothing notable today". This is PREFERRED over surfacing noise.

5. Every URGENT and FEEDBACK item must include the quote, the attribution and the message link.`,
			},
			EmptyMessage: "No user feedback since the last summary.",
		},
	}
}
