package write

import (
	"regexp"
	"strings"
)

// detector matches one class of secret-shaped content.
type detector struct {
	name string
	re   *regexp.Regexp
}

// Values are scanned with case-insensitive patterns where the secret format
// itself is case-insensitive. Detector names surface in the policy error so
// callers can tell what fired without seeing the content.
var valueDetectors = []detector{
	{"aws_access_key_id", regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"openai_api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}\b`)},
	{"github_token", regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}\b`)},
	{"bearer_token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"credential_assignment", regexp.MustCompile(
		`(?i)\b(api[_-]?key|secret|passwd|password|access[_-]?token|auth[_-]?token)\b\s*[:=]\s*\S{6,}`)},
}

// suspiciousMetaKeys are metadata key names that indicate the caller is
// stashing credentials rather than context.
var suspiciousMetaKeys = regexp.MustCompile(
	`(?i)^(api[_-]?key|secret|password|passwd|credentials?|access[_-]?token|auth[_-]?token|private[_-]?key)$`)

// scanText returns the name of the first detector matching the text.
func scanText(text string) (string, bool) {
	for _, d := range valueDetectors {
		if d.re.MatchString(text) {
			return d.name, true
		}
	}
	return "", false
}

// scanMetadata checks metadata key names and values.
func scanMetadata(metadata map[string]string) (string, bool) {
	for k, v := range metadata {
		if suspiciousMetaKeys.MatchString(strings.TrimSpace(k)) {
			return "suspicious_metadata_key", true
		}
		if name, ok := scanText(v); ok {
			return name, true
		}
	}
	return "", false
}
