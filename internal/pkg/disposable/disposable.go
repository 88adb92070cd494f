// Package disposable holds a static list of throwaway email providers.
// No external service is queried; the list ships with the binary.
package disposable

import "strings"

var domains = map[string]struct{}{
	"10minutemail.com":      {},
	"10minutemail.net":      {},
	"20minutemail.com":      {},
	"33mail.com":            {},
	"anonbox.net":           {},
	"burnermail.io":         {},
	"byom.de":               {},
	"deadaddress.com":       {},
	"discard.email":         {},
	"dispostable.com":       {},
	"emailondeck.com":       {},
	"fakeinbox.com":         {},
	"fakemailgenerator.com": {},
	"getairmail.com":        {},
	"getnada.com":           {},
	"guerrillamail.com":     {},
	"guerrillamail.net":     {},
	"guerrillamail.org":     {},
	"harakirimail.com":      {},
	"inboxkitten.com":       {},
	"incognitomail.org":     {},
	"jetable.org":           {},
	"mail-temp.com":         {},
	"mailcatch.com":         {},
	"maildrop.cc":           {},
	"mailinator.com":        {},
	"mailinator.net":        {},
	"mailnesia.com":         {},
	"mailsac.com":           {},
	"mintemail.com":         {},
	"mohmal.com":            {},
	"mytemp.email":          {},
	"nowmymail.com":         {},
	"sharklasers.com":       {},
	"spamgourmet.com":       {},
	"temp-mail.org":         {},
	"tempail.com":           {},
	"tempinbox.com":         {},
	"tempmail.dev":          {},
	"tempmailo.com":         {},
	"throwawaymail.com":     {},
	"trashmail.com":         {},
	"trashmail.de":          {},
	"yopmail.com":           {},
	"yopmail.fr":            {},
	"yopmail.net":           {},
}

// IsDisposable reports whether the domain (or a parent domain) is a known
// throwaway provider.
func IsDisposable(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if _, ok := domains[domain]; ok {
			return true
		}
		i := strings.Index(domain, ".")
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
	return false
}
