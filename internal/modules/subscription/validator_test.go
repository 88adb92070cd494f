package subscription

import (
	"strings"
	"testing"
)

func TestValidateEmailAccepts(t *testing.T) {
	for _, email := range []string{
		"jane.doe@outlook.com",
		"  Jane.Doe@Outlook.COM  ", // normalized before checking
		"dev+newsletter@fastmail.fm",
		"o.k@sub.domain.co.uk",
	} {
		if res := ValidateEmail(email); !res.Valid {
			t.Errorf("ValidateEmail(%q) rejected with reason %q, want valid", email, res.Reason)
		}
	}
}

func TestValidateEmailRejects(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		reason   string
		severity string
	}{
		{"too short", "a@", "invalid-length", SeverityLow},
		{"too long", strings.Repeat("a", 250) + "@x.com", "invalid-length", SeverityLow},
		{"local part over 64", strings.Repeat("a", 65) + "@example.io", "invalid-length", SeverityLow},
		{"no at sign", "not-an-email", "invalid-format", SeverityLow},
		{"two at signs", "a@b@c.com", "invalid-format", SeverityLow},
		{"no dot in domain", "user@nodot", "invalid-format", SeverityLow},
		{"sql injection", "x'or1=1--@gmail.com", "malicious-content", SeverityHigh},
		{"markup", "x@gmail.com<script>", "invalid-format", SeverityLow},
		{"generic local part", "admin@corp.io", "suspicious-local-part", SeverityMedium},
		{"no-reply local part", "no-reply@corp.io", "suspicious-local-part", SeverityMedium},
		{"reserved domain via local", "test@example.com", "suspicious-local-part", SeverityMedium},
		{"reserved domain", "jane@example.com", "reserved-domain", SeverityMedium},
		{"localhost", "jane@localhost.localdomain", "reserved-domain", SeverityMedium},
		{"test tld", "jane@myhost.test", "reserved-domain", SeverityMedium},
		{"repeated characters", "zzzzzz@gmail.com", "repeated-characters", SeverityMedium},
		{"disposable", "jane@mailinator.com", "disposable-domain", SeverityMedium},
		{"disposable subdomain", "jane@mx.yopmail.com", "disposable-domain", SeverityMedium},
		{"typo domain", "jane@gmial.com", "typo-domain", SeverityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateEmail(tc.email)
			if res.Valid {
				t.Fatalf("ValidateEmail(%q) accepted, want reason %q", tc.email, tc.reason)
			}
			if res.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", res.Reason, tc.reason)
			}
			if res.Severity != tc.severity {
				t.Errorf("severity = %q, want %q", res.Severity, tc.severity)
			}
		})
	}
}

func TestValidateEmailTypoSuggestion(t *testing.T) {
	res := ValidateEmail("jane@gmial.com")
	if res.Valid {
		t.Fatal("typo domain should be rejected")
	}
	if res.Suggestion != "gmail.com" {
		t.Errorf("suggestion = %q, want %q", res.Suggestion, "gmail.com")
	}
}

// The first failing check wins: a disposable domain with a malicious local
// part must report the malicious reason, not the disposable one.
func TestValidateEmailFirstFailureWins(t *testing.T) {
	res := ValidateEmail("x'or1=1--@mailinator.com")
	if res.Reason != "malicious-content" {
		t.Errorf("reason = %q, want malicious-content", res.Reason)
	}
	if res.Severity != SeverityHigh {
		t.Errorf("severity = %q, want high", res.Severity)
	}
}
