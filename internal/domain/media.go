package domain

import "github.com/flashdeck/flashdeck/internal/datauri"

// MediaKind says which media partition a slot's blob belongs to.
type MediaKind string

// Media kinds.
const (
	KindImage MediaKind = "image"
	KindAudio MediaKind = "audio"
)

// MediaState tags the variant held by a Media value.
type MediaState int

// Media states.
const (
	MediaEmpty MediaState = iota
	MediaInline
	MediaReferenced
)

// String returns the state name.
func (s MediaState) String() string {
	switch s {
	case MediaInline:
		return "inline"
	case MediaReferenced:
		return "referenced"
	default:
		return "empty"
	}
}

// Media is the resolved view of a media slot: nothing, an inline data URI, or a
// media store reference.
type Media struct {
	State  MediaState
	Inline string
	ID     string
}

// ResolveMedia turns the two persisted fields of a slot into one Media value.
// A reference always wins; the inline value next to it is only a display copy.
func ResolveMedia(inline, ref string) Media {
	switch {
	case ref != "":
		return Media{State: MediaReferenced, ID: ref}
	case datauri.IsInlineEncoded(inline):
		return Media{State: MediaInline, Inline: inline}
	default:
		return Media{State: MediaEmpty}
	}
}

// MediaSlot addresses one media field pair inside a record. Inline and Ref
// point into the record, so writes through a slot change the record.
type MediaSlot struct {
	// Name identifies the slot within its record, e.g. "front.image".
	Name   string
	Kind   MediaKind
	Inline *string
	Ref    *string

	// BlurHash, when set, receives a placeholder hash for the attached image.
	BlurHash *string
}

// Media resolves the slot's current value.
func (s MediaSlot) Media() Media {
	return ResolveMedia(*s.Inline, *s.Ref)
}

// NeedsMigration reports whether the slot holds inline media with no reference.
func (s MediaSlot) NeedsMigration() bool {
	return *s.Ref == "" && datauri.IsInlineEncoded(*s.Inline)
}

// HasBoth reports whether the slot carries a reference and a leftover inline copy.
func (s MediaSlot) HasBoth() bool {
	return *s.Ref != "" && *s.Inline != ""
}

// MediaOwner is implemented by every record that owns media blobs.
type MediaOwner interface {
	MediaSlots() []MediaSlot
}

// Slot finds the slot with the given name.
func Slot(owner MediaOwner, name string) (MediaSlot, bool) {
	for _, s := range owner.MediaSlots() {
		if s.Name == name {
			return s, true
		}
	}
	return MediaSlot{}, false
}

// MediaRefs returns every media reference held by owner.
func MediaRefs(owner MediaOwner) []MediaRef {
	var refs []MediaRef
	for _, s := range owner.MediaSlots() {
		if *s.Ref != "" {
			refs = append(refs, MediaRef{Kind: s.Kind, ID: *s.Ref})
		}
	}
	return refs
}

// MediaRef names a blob in the media store.
type MediaRef struct {
	Kind MediaKind
	ID   string
}

// SlotChange describes how an update changes one media slot.
type SlotChange int

// Slot changes.
const (
	// SlotUnchanged keeps the stored reference.
	SlotUnchanged SlotChange = iota
	// SlotReplaced carries new inline media that needs migration.
	SlotReplaced
	// SlotCleared removes the media.
	SlotCleared
	// SlotRelinked points the slot at a different existing reference.
	SlotRelinked
)

// CompareSlot classifies the change from the stored slot to the incoming one.
// display is the value the stored reference hydrates to, or empty when it is
// unknown. An incoming inline copy equal to it is not a new value.
func CompareSlot(stored, incoming MediaSlot, display string) SlotChange {
	inline := *incoming.Inline
	switch {
	case *incoming.Ref != "" && *incoming.Ref == *stored.Ref:
		if datauri.IsInlineEncoded(inline) && inline != *stored.Inline && inline != display {
			return SlotReplaced
		}
		return SlotUnchanged
	case *incoming.Ref != "":
		return SlotRelinked
	case datauri.IsInlineEncoded(inline):
		if inline == *stored.Inline && *stored.Ref == "" {
			return SlotUnchanged
		}
		return SlotReplaced
	case *stored.Ref == "" && *stored.Inline == "":
		return SlotUnchanged
	default:
		return SlotCleared
	}
}

// AmbiguousRef reports whether incoming keeps the stored reference while
// carrying an inline value that is neither the stored inline copy nor empty.
// Only the referenced blob's content tells a display copy from a new value.
func AmbiguousRef(stored, incoming MediaSlot) bool {
	return *stored.Ref != "" && *incoming.Ref == *stored.Ref &&
		datauri.IsInlineEncoded(*incoming.Inline) && *incoming.Inline != *stored.Inline
}
