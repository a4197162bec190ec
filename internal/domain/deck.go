package domain

// Deck is the root of ownership for themes and flashcards.
type Deck struct {
	Timestamps
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	CoverImage    string   `json:"coverImage,omitempty"`
	CoverImageID  string   `json:"coverImageId,omitempty"`
	CoverBlurHash string   `json:"coverBlurHash,omitempty"`
	Tags          []string `json:"tags"`
	AuthorID      string   `json:"authorId"`
	AuthorName    string   `json:"authorName"`
	IsPublic      bool     `json:"isPublic"`
	IsShared      bool     `json:"isShared"`
	OriginalID    string   `json:"originalId,omitempty"`
	IsPublished   bool     `json:"isPublished"`
}

// MediaSlots implements MediaOwner.
func (d *Deck) MediaSlots() []MediaSlot {
	return []MediaSlot{
		{Name: "coverImage", Kind: KindImage, Inline: &d.CoverImage, Ref: &d.CoverImageID, BlurHash: &d.CoverBlurHash},
	}
}

// IsImportOf reports whether d was imported from the deck originalID.
func (d *Deck) IsImportOf(originalID string) bool {
	return d.IsShared && d.OriginalID != "" && d.OriginalID == originalID
}

// DeckPatch is a merge-patch for a Deck. Nil fields are left alone.
type DeckPatch struct {
	Title       *string   `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=2000"`
	CoverImage  *string   `json:"coverImage,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	IsPublic    *bool     `json:"isPublic,omitempty"`
	IsPublished *bool     `json:"isPublished,omitempty"`
}

// Apply merges the patch into d. A new cover image drops the old reference so
// the new inline value gets migrated.
func (p DeckPatch) Apply(d *Deck) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.CoverImage != nil {
		d.CoverImage = *p.CoverImage
		d.CoverImageID = ""
		d.CoverBlurHash = ""
	}
	if p.Tags != nil {
		d.Tags = *p.Tags
	}
	if p.IsPublic != nil {
		d.IsPublic = *p.IsPublic
	}
	if p.IsPublished != nil {
		d.IsPublished = *p.IsPublished
	}
}
