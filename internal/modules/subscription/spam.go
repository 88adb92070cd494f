package subscription

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// SpamInput carries the request fields the detector inspects.
type SpamInput struct {
	Email           string
	Honeypot        string
	ClientTimestamp int64 // ms epoch of form load, 0 when absent
	UserAgent       string
	IP              string
}

// SpamVerdict is the aggregate outcome. Flags from every sub-check that ran
// are accumulated regardless of the verdict.
type SpamVerdict struct {
	IsSpam     bool
	Reason     string
	Confidence float64
	Flags      []string
}

// spamSignal is one sub-check's contribution.
type spamSignal struct {
	spam       bool
	reason     string
	confidence float64
	flags      []string
}

const (
	spamDefinite      = 0.9 // short-circuit threshold
	spamMeanThreshold = 0.5
	spamFlagThreshold = 3

	minSubmitElapsed = 2 * time.Second
	maxSubmitElapsed = time.Hour
)

var botSignatures = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "python", "java/", "okhttp", "go-http-client",
	"axios", "node-fetch", "libwww", "httpclient", "phantomjs",
	"headless", "selenium", "scrapy", "mechanize",
}

var legacyBrowserMarkers = []string{"msie", "trident", "netscape"}

var (
	allDigitsLocal = regexp.MustCompile(`^\d+$`)
	// Six or more consecutive consonants, or the same rune repeated six or
	// more times: both read as keyboard mash.
	consonantStreak = regexp.MustCompile(`[bcdfghjklmnpqrstvwxyz]{6,}`)
	repeatedRun     = regexp.MustCompile(`(.)\1{5,}`)
	nonAlnum        = regexp.MustCompile(`[^a-z0-9]`)
)

// DetectSpam runs the five heuristic sub-checks concurrently and combines
// their signals. A single sub-check at confidence >= 0.9 decides immediately;
// otherwise the mean confidence and the flag count decide.
func DetectSpam(in SpamInput, now time.Time) SpamVerdict {
	checks := []func(SpamInput, time.Time) spamSignal{
		checkHoneypot,
		checkTiming,
		checkUserAgent,
		checkIPReputation,
		checkEmailShape,
	}

	signals := make([]spamSignal, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check func(SpamInput, time.Time) spamSignal) {
			defer wg.Done()
			signals[i] = check(in, now)
		}(i, check)
	}
	wg.Wait()

	var flags []string
	var sum float64
	best := spamSignal{}
	for _, sig := range signals {
		flags = append(flags, sig.flags...)
		// Definitive signal: stop combining, keep only the flags collected so far.
		if sig.spam && sig.confidence >= spamDefinite {
			return SpamVerdict{IsSpam: true, Reason: sig.reason, Confidence: sig.confidence, Flags: flags}
		}
		sum += sig.confidence
		if sig.confidence > best.confidence {
			best = sig
		}
	}

	mean := sum / float64(len(checks))
	if mean > spamMeanThreshold || len(flags) >= spamFlagThreshold {
		reason := best.reason
		if reason == "" {
			reason = "multiple-weak-signals"
		}
		return SpamVerdict{IsSpam: true, Reason: reason, Confidence: mean, Flags: flags}
	}
	return SpamVerdict{Confidence: mean, Flags: flags}
}

// checkHoneypot: the field is invisible to humans, any value means automation.
func checkHoneypot(in SpamInput, _ time.Time) spamSignal {
	if strings.TrimSpace(in.Honeypot) == "" {
		return spamSignal{}
	}
	return spamSignal{spam: true, reason: "honeypot-filled", confidence: 1.0, flags: []string{"honeypot"}}
}

// checkTiming compares server time with the client form-load timestamp.
// A missing timestamp carries no signal.
func checkTiming(in SpamInput, now time.Time) spamSignal {
	if in.ClientTimestamp <= 0 {
		return spamSignal{}
	}
	elapsed := now.Sub(time.UnixMilli(in.ClientTimestamp))
	switch {
	case elapsed < minSubmitElapsed:
		return spamSignal{spam: true, reason: "submission-too-fast", confidence: 0.9, flags: []string{"too-fast"}}
	case elapsed > maxSubmitElapsed:
		return spamSignal{spam: true, reason: "stale-form-timestamp", confidence: 0.6, flags: []string{"stale-timestamp"}}
	}
	return spamSignal{}
}

func checkUserAgent(in SpamInput, _ time.Time) spamSignal {
	ua := strings.ToLower(strings.TrimSpace(in.UserAgent))
	if ua == "" {
		return spamSignal{spam: true, reason: "missing-user-agent", confidence: 0.8, flags: []string{"no-user-agent"}}
	}

	sig := spamSignal{}
	for _, marker := range botSignatures {
		if strings.Contains(ua, marker) {
			sig = sig.raise("bot-user-agent", 0.9, "bot-signature")
			break
		}
	}
	if len(ua) < 20 {
		sig = sig.raise("short-user-agent", 0.7, "short-user-agent")
	}
	for _, marker := range legacyBrowserMarkers {
		if strings.Contains(ua, marker) {
			sig = sig.raise("legacy-browser", 0.6, "legacy-browser")
			break
		}
	}

	// Multiple hits take the maximum confidence, never the sum.
	sig.spam = sig.confidence > 0.5
	return sig
}

// checkIPReputation only flags private and loopback ranges. External
// reputation services are deliberately not queried; the latency is not worth
// it for a landing page.
func checkIPReputation(in SpamInput, _ time.Time) spamSignal {
	ip := strings.TrimSpace(in.IP)
	if ip == "" {
		return spamSignal{}
	}
	privatePrefixes := []string{"127.", "10.", "192.168.", "172.16.", "fc", "fd"}
	internal := ip == "::1"
	for _, p := range privatePrefixes {
		if strings.HasPrefix(ip, p) {
			internal = true
			break
		}
	}
	if !internal {
		return spamSignal{}
	}
	return spamSignal{reason: "internal-ip", confidence: 0.5, flags: []string{"internal-ip"}}
}

func checkEmailShape(in SpamInput, _ time.Time) spamSignal {
	local, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(in.Email)), "@")
	if !ok || local == "" {
		return spamSignal{}
	}

	sig := spamSignal{}
	if len(local) > 50 {
		sig = sig.raise("long-local-part", 0.5, "long-local-part")
	}
	if allDigitsLocal.MatchString(local) {
		sig = sig.raise("numeric-local-part", 0.6, "numeric-local-part")
	}
	if consonantStreak.MatchString(local) || repeatedRun.MatchString(local) {
		sig = sig.raise("random-string", 0.7, "random-string")
	}
	if len(nonAlnum.FindAllString(local, -1)) > 5 {
		sig = sig.raise("symbol-heavy-local-part", 0.6, "symbol-heavy")
	}

	sig.spam = sig.confidence > 0.5
	return sig
}

// raise records a triggered heuristic, keeping the highest confidence as the
// signal's reason and confidence.
func (s spamSignal) raise(reason string, confidence float64, flag string) spamSignal {
	if confidence > s.confidence {
		s.confidence = confidence
		s.reason = reason
	}
	s.flags = append(s.flags, flag)
	return s
}
