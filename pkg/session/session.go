// Package session persists the cookie bundle an authenticated job
// runs with. The store is a single JSON file under the user's home
// directory.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/twharvest/twharvest/pkg/cookies"
)

// Session is the persisted credential bundle: an ordered set of
// cookie strings, a last-updated timestamp, and a validity flag.
type Session struct {
	Cookies   []cookies.Cookie `json:"cookies"`
	UpdatedAt string           `json:"updatedAt"`
	Valid     bool             `json:"valid"`
}

// Store persists a Session for one appName under the user's home
// directory, at <home>/.<appName>/session.json.
type Store struct {
	appName string
	nowISO  func() string
}

// New returns a Store for appName. nowISO, if nil, defaults to the
// real clock; tests may override it for determinism.
func New(appName string, nowISO func() string) *Store {
	return &Store{appName: appName, nowISO: nowISO}
}

func (s *Store) path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "."+s.appName, "session.json"), nil
}

// Exists reports whether a session file is present.
func (s *Store) Exists() (bool, error) {
	path, err := s.path()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Load returns (nil, nil) when no session file exists, the decoded
// Session on success, and a decode error when the file exists but is
// malformed.
func (s *Store) Load() (*Session, error) {
	path, err := s.path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", path, err)
	}
	return &sess, nil
}

// Save writes sess to the session file, creating missing parent
// directories and setting file mode 0600.
func (s *Store) Save(sess Session) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if sess.UpdatedAt == "" && s.nowISO != nil {
		sess.UpdatedAt = s.nowISO()
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Clear removes the session file, if present.
func (s *Store) Clear() error {
	path, err := s.path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Anonymous returns an empty, invalid Session used when no session
// file is present so the scraper may still try guest endpoints.
func Anonymous() Session {
	return Session{Cookies: nil, Valid: false}
}

// LoginWithCookies normalizes blob, enforces strict required-cookie
// validation unless strict is false, and returns the Session to
// persist.
func LoginWithCookies(blob string, strict bool) (Session, error) {
	normalized := cookies.Normalize(blob)
	if strict {
		if missing := cookies.ValidateRequired(normalized, cookies.RequiredCookieNames); len(missing) > 0 {
			return Session{}, fmt.Errorf("missing required cookie(s): %s", strings.Join(missing, ", "))
		}
	}
	return Session{Cookies: normalized, Valid: true}, nil
}

// AuthTriple is the (authToken, ct0, guestToken?) material presented
// to the structured API as cookie and CSRF headers.
type AuthTriple struct {
	AuthToken  string
	CT0        string
	GuestToken string
}

// Key returns the de-duplication key "authToken|ct0" for a triple.
func (t AuthTriple) Key() string {
	return t.AuthToken + "|" + t.CT0
}

// ExtractAuthTriples enumerates the auth triples to try in order:
// domain-aligned (authToken, ct0) pairs first (each paired with any
// guest token found in the session), followed by the de-duplicated
// full cross-product of every distinct authToken and ct0 value found
// anywhere in the session.
func ExtractAuthTriples(sess Session) []AuthTriple {
	guestToken := firstValue(sess.Cookies, "guest_id", "gt")

	byDomain := map[string]struct{ auth, ct0 string }{}
	var authTokens, ct0s []string
	seenAuth, seenCt0 := map[string]bool{}, map[string]bool{}

	for _, c := range sess.Cookies {
		switch strings.ToLower(c.Name) {
		case "auth_token":
			e := byDomain[c.Domain]
			e.auth = c.Value
			byDomain[c.Domain] = e
			if !seenAuth[c.Value] {
				seenAuth[c.Value] = true
				authTokens = append(authTokens, c.Value)
			}
		case "ct0":
			e := byDomain[c.Domain]
			e.ct0 = c.Value
			byDomain[c.Domain] = e
			if !seenCt0[c.Value] {
				seenCt0[c.Value] = true
				ct0s = append(ct0s, c.Value)
			}
		}
	}

	var triples []AuthTriple
	seenKey := map[string]bool{}
	for _, e := range byDomain {
		if e.auth == "" || e.ct0 == "" {
			continue
		}
		t := AuthTriple{AuthToken: e.auth, CT0: e.ct0, GuestToken: guestToken}
		if !seenKey[t.Key()] {
			seenKey[t.Key()] = true
			triples = append(triples, t)
		}
	}
	for _, a := range authTokens {
		for _, c := range ct0s {
			t := AuthTriple{AuthToken: a, CT0: c, GuestToken: guestToken}
			if !seenKey[t.Key()] {
				seenKey[t.Key()] = true
				triples = append(triples, t)
			}
		}
	}
	return triples
}

func firstValue(cks []cookies.Cookie, names ...string) string {
	for _, c := range cks {
		for _, n := range names {
			if strings.EqualFold(c.Name, n) {
				return c.Value
			}
		}
	}
	return ""
}

// FirstPairCookieHeader renders the session's remaining cookies
// (excluding auth_token and ct0, which the caller already places at
// the front of the header) keeping only the first occurrence of each
// distinct cookie name, joined in Cookie-header form.
func FirstPairCookieHeader(sess Session) string {
	seen := map[string]bool{"auth_token": true, "ct0": true}
	var parts []string
	for _, c := range sess.Cookies {
		key := strings.ToLower(c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
