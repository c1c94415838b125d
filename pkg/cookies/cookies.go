// Package cookies normalizes a free-form cookie blob — pasted from a
// browser's dev tools, exported as a Netscape-format jar, or copied
// as a single Cookie header — into a deduplicated, cross-domain-aware
// set of cookies the session store and scraper can rely on.
package cookies

import (
	"sort"
	"strings"
)

// PlatformDomains are the two domains a cookie is cross-expanded
// between when its Domain attribute names either one.
var PlatformDomains = []string{"x-like.tld", "twitter-like.tld"}

// RequiredCookieNames is the default strict-mode required set.
var RequiredCookieNames = []string{"auth_token", "ct0"}

// Cookie is one normalized cookie, optionally scoped to a domain.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HttpOnly bool
}

// String renders the cookie in the single-cookie form the session
// file and cross-domain materialization operate on.
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

// Normalize auto-detects the shape of blob and returns a
// deduplicated, cross-domain-expanded cookie set. normalize is
// idempotent: Normalize(Join(Normalize(x))) == Normalize(x).
func Normalize(blob string) []Cookie {
	raw := parse(blob)
	expanded := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		expanded = append(expanded, canonicalizeDomain(c)...)
	}
	return dedup(expanded)
}

func parse(blob string) []Cookie {
	blob = strings.TrimRight(blob, "\r\n")
	if blob == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(blob, "\r\n", "\n"), "\n")
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}
	if looksLikeNetscapeJar(lines) {
		return parseNetscapeJar(lines)
	}
	if nonEmpty == 1 {
		return parseHeaderForm(strings.TrimSpace(lines[0]))
	}
	var out []Cookie
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") && !strings.HasPrefix(l, "#HttpOnly_") {
			continue
		}
		out = append(out, parseSetCookieLine(l)...)
	}
	return out
}

func looksLikeNetscapeJar(lines []string) bool {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || (strings.HasPrefix(l, "#") && !strings.HasPrefix(l, "#HttpOnly_")) {
			continue
		}
		return len(strings.Split(l, "\t")) == 7
	}
	return false
}

// parseNetscapeJar parses the legacy tab-separated cookie jar format:
// domain, includeSubdomains, path, secure, expiration, name, value.
func parseNetscapeJar(lines []string) []Cookie {
	var out []Cookie
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "#") && !strings.HasPrefix(l, "#HttpOnly_") {
			continue
		}
		fields := strings.Split(l, "\t")
		if len(fields) != 7 {
			continue
		}
		httpOnly := false
		domain := fields[0]
		if strings.HasPrefix(domain, "#HttpOnly_") {
			httpOnly = true
			domain = strings.TrimPrefix(domain, "#HttpOnly_")
		}
		out = append(out, Cookie{
			Domain:   domain,
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		})
	}
	return out
}

// parseSetCookieLine parses one "name=value; Attr=val; Flag" line.
func parseSetCookieLine(line string) []Cookie {
	segments := strings.Split(line, ";")
	if len(segments) == 0 {
		return nil
	}
	name, value, ok := splitNameValue(segments[0])
	if !ok {
		return nil
	}
	c := Cookie{Name: name, Value: value}
	for _, attr := range segments[1:] {
		attr = strings.TrimSpace(attr)
		key, val, hasVal := splitNameValue(attr)
		switch strings.ToLower(key) {
		case "domain":
			if hasVal {
				c.Domain = val
			}
		case "path":
			if hasVal {
				c.Path = val
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HttpOnly = true
		}
	}
	return []Cookie{c}
}

// parseHeaderForm parses a single Cookie-header line "a=1; b=2; c=3"
// into one cookie per segment. A header-form blob carries no Domain
// attribute of its own, but it is always copied from a session on
// one of the two platform domains, so each cookie is seeded with the
// first platform domain and cross-expanded to both by
// canonicalizeDomain.
func parseHeaderForm(line string) []Cookie {
	var out []Cookie
	for _, seg := range strings.Split(line, ";") {
		name, value, ok := splitNameValue(seg)
		if !ok {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value, Domain: PlatformDomains[0]})
	}
	return out
}

func splitNameValue(s string) (name, value string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return s, "", true
	}
	return strings.TrimSpace(s[:idx]), s[idx+1:], true
}

// canonicalizeDomain trims, lowercases, and strips a leading dot from
// the cookie's domain; if the resulting domain ends with either
// platform domain suffix, it returns one copy per platform domain in
// leading-dot canonical form. Otherwise it returns the cookie
// unchanged except for the trim/lowercase/strip-dot normalization.
func canonicalizeDomain(c Cookie) []Cookie {
	domain := strings.ToLower(strings.TrimSpace(c.Domain))
	domain = strings.TrimPrefix(domain, ".")
	if domain == "" {
		c.Domain = ""
		return []Cookie{c}
	}
	for _, platform := range PlatformDomains {
		if domain == platform || strings.HasSuffix(domain, "."+platform) {
			out := make([]Cookie, 0, len(PlatformDomains))
			for _, p := range PlatformDomains {
				cp := c
				cp.Domain = "." + p
				out = append(out, cp)
			}
			return out
		}
	}
	c.Domain = domain
	return []Cookie{c}
}

func dedup(cookies []Cookie) []Cookie {
	seen := make(map[string]bool, len(cookies))
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		key := c.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// ValidateRequired extracts the name before the first "=" of the
// first segment of each cookie and reports which names in required
// (compared case-insensitively) are absent. No values are inspected
// or returned.
func ValidateRequired(cookies []Cookie, required []string) (missing []string) {
	present := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		present[strings.ToLower(c.Name)] = true
	}
	for _, name := range required {
		if !present[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
