package textnorm

import "regexp"

const filtered = "[filtered]"

var (
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)
	emailRe = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@(?:gmail|googlemail|yahoo|hotmail|outlook|live|icloud|aol|proton|protonmail|gmx|mail)\.[a-z.]{2,}\b`)
)

// FilterSensitive masks phone numbers and personal e-mail addresses before
// scraped text is stored.
func FilterSensitive(text string) string {
	text = emailRe.ReplaceAllString(text, filtered)
	return phoneRe.ReplaceAllString(text, filtered)
}
