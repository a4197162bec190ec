package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pngURI   = "data:image/png;base64,iVBORw0KGgo="
	otherURI = "data:image/png;base64,b3RoZXI="
)

func TestResolveMedia(t *testing.T) {
	tests := []struct {
		name   string
		inline string
		ref    string
		want   Media
	}{
		{"empty", "", "", Media{State: MediaEmpty}},
		{"inline only", pngURI, "", Media{State: MediaInline, Inline: pngURI}},
		{"referenced only", "", "img_1_a", Media{State: MediaReferenced, ID: "img_1_a"}},
		{"reference wins over inline", pngURI, "img_1_a", Media{State: MediaReferenced, ID: "img_1_a"}},
		{"non data uri is empty", "https://example.com/x.png", "", Media{State: MediaEmpty}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMedia(tt.inline, tt.ref))
		})
	}
}

func TestMediaSlots_WriteThrough(t *testing.T) {
	card := &Flashcard{Front: Side{Text: "Q", Image: pngURI}}

	slots := card.MediaSlots()
	require.Len(t, slots, 4)
	assert.Equal(t, []string{"front.image", "front.audio", "back.image", "back.audio"},
		[]string{slots[0].Name, slots[1].Name, slots[2].Name, slots[3].Name})

	slot, ok := Slot(card, "front.image")
	require.True(t, ok)
	assert.True(t, slot.NeedsMigration())

	*slot.Ref = "img_1_a"
	assert.Equal(t, "img_1_a", card.Front.ImageID)
	assert.False(t, slot.NeedsMigration())
	assert.True(t, slot.HasBoth())

	assert.Equal(t, []MediaRef{{Kind: KindImage, ID: "img_1_a"}}, MediaRefs(card))

	_, ok = Slot(card, "side.video")
	assert.False(t, ok)
}

func TestCompareSlot(t *testing.T) {
	slot := func(inline, ref string) MediaSlot {
		return MediaSlot{Inline: &inline, Ref: &ref}
	}

	tests := []struct {
		name     string
		stored   MediaSlot
		incoming MediaSlot
		display  string
		want     SlotChange
	}{
		{"same reference with display copy", slot("", "img_1_a"), slot(pngURI, "img_1_a"), pngURI, SlotUnchanged},
		{"same reference with new inline", slot("", "img_1_a"), slot(otherURI, "img_1_a"), pngURI, SlotReplaced},
		{"same reference with unknown display", slot("", "img_1_a"), slot(pngURI, "img_1_a"), "", SlotReplaced},
		{"same reference with kept inline copy", slot(otherURI, "img_1_a"), slot(otherURI, "img_1_a"), "", SlotUnchanged},
		{"same reference only", slot("", "img_1_a"), slot("", "img_1_a"), "", SlotUnchanged},
		{"new inline replaces reference", slot("", "img_1_a"), slot(pngURI, ""), "", SlotReplaced},
		{"new inline on empty slot", slot("", ""), slot(pngURI, ""), "", SlotReplaced},
		{"same pending inline", slot(pngURI, ""), slot(pngURI, ""), "", SlotUnchanged},
		{"cleared", slot("", "img_1_a"), slot("", ""), "", SlotCleared},
		{"both empty", slot("", ""), slot("", ""), "", SlotUnchanged},
		{"other reference", slot("", "img_1_a"), slot("", "img_2_b"), "", SlotRelinked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareSlot(tt.stored, tt.incoming, tt.display))
		})
	}
}

func TestAmbiguousRef(t *testing.T) {
	slot := func(inline, ref string) MediaSlot {
		return MediaSlot{Inline: &inline, Ref: &ref}
	}

	assert.True(t, AmbiguousRef(slot("", "img_1_a"), slot(pngURI, "img_1_a")))
	assert.False(t, AmbiguousRef(slot(pngURI, "img_1_a"), slot(pngURI, "img_1_a")))
	assert.False(t, AmbiguousRef(slot("", "img_1_a"), slot(pngURI, "")))
	assert.False(t, AmbiguousRef(slot("", ""), slot(pngURI, "")))
	assert.False(t, AmbiguousRef(slot("", "img_1_a"), slot("", "img_1_a")))
}

func TestDeckPatch_CoverImageDropsReference(t *testing.T) {
	deck := &Deck{Title: "T", CoverImageID: "img_1_a", CoverBlurHash: "LEHV6n"}
	title := "New"
	cover := pngURI

	DeckPatch{Title: &title, CoverImage: &cover}.Apply(deck)

	assert.Equal(t, "New", deck.Title)
	assert.Equal(t, pngURI, deck.CoverImage)
	assert.Empty(t, deck.CoverImageID)
	assert.Empty(t, deck.CoverBlurHash)
}
