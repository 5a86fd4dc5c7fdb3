package core

// IdentifyLanguage reports the programming language of a code fragment.
// Placeholder until real detection lands; everything is reported as python.
func IdentifyLanguage(content string) string {
	return "python"
}
