package nostr

import (
	"encoding/json"
)

// Filter is a NIP-01 subscription filter. Only the fields the graph engine
// uses are modeled; PTags marshals as the "#p" tag query.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	PTags   []string
	Since   int64
	Limit   int
}

// filterJSON is the wire shape; "#p" is not a valid struct tag key so the
// Filter type marshals through it by hand.
type filterJSON struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterJSON(f))
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var w filterJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = Filter(w)
	return nil
}

// Matches reports whether an event satisfies the filter. Relays do this
// matching server-side; the engine only needs it for in-memory fakes and
// for sanity-checking relay responses.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.PTags) > 0 {
		found := false
		for _, p := range e.TagValues("p") {
			if contains(f.PTags, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
