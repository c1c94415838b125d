package xclient

import (
	"github.com/twharvest/twharvest/pkg/session"
)

// The spec models rotating auth + discovered metadata as an explicit
// state object: a vector of auth triples plus current index, a
// vector of bearer candidates plus current index, and three lists
// of operation ids. All rotation is in-place on this object; retries
// re-read from it rather than capturing values up front.
type rotationState struct {
	triples   []session.AuthTriple
	tripleIdx int
	bearers   []string
	bearerIdx int
	opIDs     map[string][]string
	features  map[string]bool
}

func newRotationState(triples []session.AuthTriple, bearer string) *rotationState {
	s := &rotationState{
		triples:  triples,
		bearers:  []string{bearer},
		opIDs:    defaultOperationIDs(),
		features: defaultFeatures(),
	}
	return s
}

func (s *rotationState) currentTriple() (session.AuthTriple, bool) {
	if s.tripleIdx >= len(s.triples) {
		return session.AuthTriple{}, false
	}
	return s.triples[s.tripleIdx], true
}

// advanceTriple moves to the next auth triple candidate. It reports
// whether another triple is available.
func (s *rotationState) advanceTriple() bool {
	s.tripleIdx++
	return s.tripleIdx < len(s.triples)
}

func (s *rotationState) refreshCT0(newCT0 string) {
	if t, ok := s.currentTriple(); ok {
		t.CT0 = newCT0
		s.triples[s.tripleIdx] = t
	}
}

func (s *rotationState) currentBearer() (string, bool) {
	if s.bearerIdx >= len(s.bearers) {
		return "", false
	}
	return s.bearers[s.bearerIdx], true
}

// advanceBearer moves to the next discovered bearer token candidate.
func (s *rotationState) advanceBearer() bool {
	if s.bearerIdx+1 >= len(s.bearers) {
		return false
	}
	s.bearerIdx++
	return true
}

// mergeBearers appends newly discovered bearer tokens not already known.
func (s *rotationState) mergeBearers(tokens []string) {
	seen := make(map[string]bool, len(s.bearers))
	for _, b := range s.bearers {
		seen[b] = true
	}
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			s.bearers = append(s.bearers, t)
		}
	}
}

// mergeOperationIDs appends newly discovered operation ids for name,
// de-duplicated.
func (s *rotationState) mergeOperationIDs(name string, ids []string) {
	existing := s.opIDs[name]
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			existing = append(existing, id)
		}
	}
	s.opIDs[name] = existing
}

// disableFeatures sets the named feature flags to false in the
// mutable features map, persisting for subsequent calls.
func (s *rotationState) disableFeatures(names []string) {
	for _, n := range names {
		s.features[n] = false
	}
}

func (s *rotationState) featuresSnapshot() map[string]bool {
	out := make(map[string]bool, len(s.features))
	for k, v := range s.features {
		out[k] = v
	}
	return out
}
