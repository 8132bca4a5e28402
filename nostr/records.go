package nostr

import (
	"encoding/json"
	"sort"

	"github.com/zapabug/madtrips-sub000/errors"
)

// Record is the closed set of typed records produced by Decode. Downstream
// code switches on the concrete type instead of inspecting raw events.
type Record interface {
	isRecord()
}

// ProfileRecord is a decoded kind-0 profile metadata event.
type ProfileRecord struct {
	PubKey        string
	Name          string
	DisplayName   string
	About         string
	Picture       string
	NIP05         string
	LightningAddr string
	CreatedAt     int64
}

// ContactListRecord is a decoded kind-3 contact list: the ordered,
// deduplicated set of pubkeys this identity follows.
type ContactListRecord struct {
	PubKey    string
	Contacts  []string
	CreatedAt int64
}

// ContentRecord is any other event kind the engine passes through, e.g.
// kind-1 notes surfaced in trip feeds.
type ContentRecord struct {
	ID        string
	PubKey    string
	Kind      int
	Content   string
	CreatedAt int64
}

func (ProfileRecord) isRecord()     {}
func (ContactListRecord) isRecord() {}
func (ContentRecord) isRecord()     {}

// profileContent is the kind-0 content JSON shape (self-asserted fields).
type profileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
	NIP05       string `json:"nip05"`
	LUD16       string `json:"lud16"`
}

// Decode validates an event's shape and converts it into a typed record.
// Malformed events return an error wrapping ErrInvalidRecord; callers skip
// them rather than failing the batch.
func Decode(e *Event) (Record, error) {
	if err := e.CheckShape(); err != nil {
		return nil, err
	}

	switch e.Kind {
	case KindProfileMetadata:
		var pc profileContent
		if err := json.Unmarshal([]byte(e.Content), &pc); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRecord, "profile content for %s not JSON", e.PubKey)
		}
		return ProfileRecord{
			PubKey:        e.PubKey,
			Name:          pc.Name,
			DisplayName:   pc.DisplayName,
			About:         pc.About,
			Picture:       pc.Picture,
			NIP05:         pc.NIP05,
			LightningAddr: pc.LUD16,
			CreatedAt:     e.CreatedAt,
		}, nil

	case KindContactList:
		seen := make(map[string]bool)
		var contacts []string
		for _, p := range e.TagValues("p") {
			// Relays forward whatever clients published; drop garbage
			// pubkeys instead of poisoning the graph.
			if !isHex(p, 64) || seen[p] {
				continue
			}
			seen[p] = true
			contacts = append(contacts, p)
		}
		return ContactListRecord{
			PubKey:    e.PubKey,
			Contacts:  contacts,
			CreatedAt: e.CreatedAt,
		}, nil

	default:
		return ContentRecord{
			ID:        e.ID,
			PubKey:    e.PubKey,
			Kind:      e.Kind,
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		}, nil
	}
}

// LatestByAuthor reduces a merged multi-relay response to the newest event
// per pubkey. Kinds 0 and 3 are replaceable: older copies still served by
// slow relays are ignored. Ties on created_at break toward the lowest id so
// the result is independent of relay response order.
func LatestByAuthor(events []*Event) map[string]*Event {
	latest := make(map[string]*Event)
	for _, e := range events {
		cur, ok := latest[e.PubKey]
		if !ok || e.CreatedAt > cur.CreatedAt ||
			(e.CreatedAt == cur.CreatedAt && e.ID < cur.ID) {
			latest[e.PubKey] = e
		}
	}
	return latest
}

// DedupSorted returns a sorted copy of ids with duplicates removed. Filter
// construction uses it so equivalent queries produce identical cache keys.
func DedupSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
