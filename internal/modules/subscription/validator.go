package subscription

import (
	"regexp"
	"strings"

	"github.com/lumenfest/core/internal/pkg/disposable"
	"github.com/lumenfest/core/internal/pkg/ident"
)

// Severity of a failed validation check.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// EmailCheck is the outcome of ValidateEmail. At most one reason is set: the
// first failing check wins, there is no aggregation.
type EmailCheck struct {
	Valid      bool
	Reason     string
	Severity   string
	Suggestion string // set only for typo-domain failures
}

const (
	maxEmailLength = 254
	minEmailLength = 3
	maxLocalLength = 64
)

// Permissive RFC 5322 shape: one @, at least one dot in the domain.
var emailPattern = regexp.MustCompile(
	`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// Attack payloads that have no business inside an email field. Checked before
// the softer suspicious-pattern rules to fail fast.
var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)('|--|;|\bunion\b|\bselect\b|\bdrop\b|\bdelete\b|\binsert\b|\bexec\b)`),
	regexp.MustCompile(`(?i)(<script|</script|javascript:|on\w+\s*=|<iframe|<img|<svg)`),
	regexp.MustCompile(`\.\.[/\\]`),
	regexp.MustCompile(`\x00`),
}

// Generic role addresses that never belong on a personal mailing list.
var suspiciousLocals = map[string]struct{}{
	"admin": {}, "administrator": {}, "root": {}, "postmaster": {},
	"webmaster": {}, "hostmaster": {}, "abuse": {}, "security": {},
	"no-reply": {}, "noreply": {}, "donotreply": {}, "mailer-daemon": {},
	"test": {}, "testing": {}, "example": {}, "null": {}, "void": {},
}

var repeatedCharLocal = regexp.MustCompile(`^(.)\1+$`)

var reservedDomains = map[string]struct{}{
	"example.com": {}, "example.org": {}, "example.net": {},
	"localhost": {}, "localhost.localdomain": {},
}

var reservedDomainSuffixes = []string{".local", ".localhost", ".test", ".invalid", ".example"}

var ipLiteralDomain = regexp.MustCompile(`^\[?\d{1,3}(\.\d{1,3}){3}\]?$`)

// typoDomains maps frequent misspellings to the domain the user probably meant.
var typoDomains = map[string]string{
	"gmial.com":    "gmail.com",
	"gmai.com":     "gmail.com",
	"gmal.com":     "gmail.com",
	"gamil.com":    "gmail.com",
	"gmail.co":     "gmail.com",
	"gmail.cm":     "gmail.com",
	"yaho.com":     "yahoo.com",
	"yahooo.com":   "yahoo.com",
	"yhoo.com":     "yahoo.com",
	"hotmial.com":  "hotmail.com",
	"hotmal.com":   "hotmail.com",
	"hotmail.co":   "hotmail.com",
	"outlok.com":   "outlook.com",
	"outloook.com": "outlook.com",
	"iclould.com":  "icloud.com",
	"icloud.co":    "icloud.com",
}

func invalid(reason, severity string) EmailCheck {
	return EmailCheck{Reason: reason, Severity: severity}
}

// ValidateEmail runs the fixed-order admission checks against the normalized
// address and stops at the first failure.
func ValidateEmail(email string) EmailCheck {
	norm := ident.NormalizeEmail(email)

	// 1. Length bounds.
	if len(norm) < minEmailLength || len(norm) > maxEmailLength {
		return invalid("invalid-length", SeverityLow)
	}
	local, domain, hasAt := strings.Cut(norm, "@")
	if hasAt && len(local) > maxLocalLength {
		return invalid("invalid-length", SeverityLow)
	}

	// 2. Structural shape.
	if !hasAt || strings.Contains(domain, "@") || !emailPattern.MatchString(norm) {
		return invalid("invalid-format", SeverityLow)
	}

	// 3. Malicious content, on the raw string.
	for _, p := range maliciousPatterns {
		if p.MatchString(email) {
			return invalid("malicious-content", SeverityHigh)
		}
	}

	// 4. Suspicious patterns.
	if _, ok := suspiciousLocals[local]; ok {
		return invalid("suspicious-local-part", SeverityMedium)
	}
	if len(local) > 2 && repeatedCharLocal.MatchString(local) {
		return invalid("repeated-characters", SeverityMedium)
	}
	if isReservedDomain(domain) {
		return invalid("reserved-domain", SeverityMedium)
	}

	// 5. Disposable providers.
	if disposable.IsDisposable(domain) {
		return invalid("disposable-domain", SeverityMedium)
	}

	// 6. Likely typo. Advisory, but still rejected so the user can correct it.
	if want, ok := typoDomains[domain]; ok {
		return EmailCheck{Reason: "typo-domain", Severity: SeverityLow, Suggestion: want}
	}

	return EmailCheck{Valid: true}
}

func isReservedDomain(domain string) bool {
	if _, ok := reservedDomains[domain]; ok {
		return true
	}
	for _, suffix := range reservedDomainSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return ipLiteralDomain.MatchString(domain)
}
