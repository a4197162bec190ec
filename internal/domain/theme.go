package domain

// Theme groups flashcards inside one deck.
type Theme struct {
	Timestamps
	ID            string `json:"id"`
	DeckID        string `json:"deckId"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CoverImage    string `json:"coverImage,omitempty"`
	CoverImageID  string `json:"coverImageId,omitempty"`
	CoverBlurHash string `json:"coverBlurHash,omitempty"`
}

// MediaSlots implements MediaOwner.
func (t *Theme) MediaSlots() []MediaSlot {
	return []MediaSlot{
		{Name: "coverImage", Kind: KindImage, Inline: &t.CoverImage, Ref: &t.CoverImageID, BlurHash: &t.CoverBlurHash},
	}
}

// ThemePatch is a merge-patch for a Theme. Nil fields are left alone.
type ThemePatch struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	CoverImage  *string `json:"coverImage,omitempty"`
}

// Apply merges the patch into t.
func (p ThemePatch) Apply(t *Theme) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.CoverImage != nil {
		t.CoverImage = *p.CoverImage
		t.CoverImageID = ""
		t.CoverBlurHash = ""
	}
}
