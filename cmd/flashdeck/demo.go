package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/datauri"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/service"
)

// prepareDemo points the profile at a scratch directory with in-memory records.
func prepareDemo(cfg *config.Config) error {
	dir, err := os.MkdirTemp("", "flashdeck-demo-*")
	if err != nil {
		return err
	}
	cfg.Data.BasePath = dir
	cfg.Records.Backend = config.RecordBackendMemory
	cfg.Media.Backend = config.MediaBackendFilesystem
	return nil
}

func runDemo(ctx context.Context, a *app, _ []string) error {
	users := do.MustInvoke[*service.UserService](a.injector)
	decks := do.MustInvoke[*service.DeckService](a.injector)
	cards := do.MustInvoke[*service.FlashcardService](a.injector)
	share := do.MustInvoke[*service.ShareService](a.injector)
	media := do.MustInvoke[*service.Media](a.injector)
	migrator := do.MustInvoke[*mediabridge.Migrator](a.injector)
	cfg := do.MustInvoke[*config.Config](a.injector)

	author, err := users.CreateUser(ctx, service.CreateUserInput{Username: "demo", Email: "demo@x.com", Password: "pw"})
	if err != nil {
		return err
	}
	sess, err := users.Login(ctx, "demo@x.com", "pw")
	if err != nil {
		return err
	}

	deck, err := decks.CreateDeck(ctx, sess, service.CreateDeckInput{Title: "T", Tags: []string{"demo"}})
	if err != nil {
		return err
	}
	if _, err := cards.CreateFlashcard(ctx, service.CreateFlashcardInput{
		DeckID: deck.ID,
		Front:  domain.Side{Text: "Q", Audio: datauri.Encode("audio/mpeg", []byte("ID3 demo clip"))},
		Back:   domain.Side{Text: "A"},
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created deck %s for %s\n", deck.ID, author.Username)

	if err := media.Settle(ctx); err != nil {
		return err
	}

	export, err := share.ExportDeck(ctx, deck.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d flashcards, %d themes\n", len(export.Flashcards), len(export.Themes))

	importedID, err := share.ImportDeck(ctx, sess, export, author.ID)
	if err != nil {
		return err
	}
	imported, _ := decks.GetDeck(ctx, importedID)
	fmt.Fprintf(a.out, "imported as %s (shared=%t, original=%s)\n", importedID, imported.IsShared, imported.OriginalID)

	if err := media.Settle(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile kept at %s\n\nmedia report:\n", cfg.Data.BasePath)
	return a.printJSON(migrator.Scan(ctx))
}
