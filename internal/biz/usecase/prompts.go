package usecase

// Prompts renders the model prompts used by the classifier and digest generator.
// It is satisfied by conf.PromptsConfig.
type Prompts interface {
	ClassifierSystem(products []string) string
	ClassifierUser(apps []string, content string) string
	DigestPrompt(products []string, messages string) string
	EmptyDigest() string
}
