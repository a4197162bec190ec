// Package main seeds a profile with a demo user, decks, themes and flashcards
// carrying inline media, so the background media migration has work to do.
//
// Flags after "--" are passed to the regular configuration loader.
//
// Usage:
//
//	go run ./cmd/seed
//	go run ./cmd/seed -decks 5 -cards 40 -- -data-path /tmp/flashdeck
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/datauri"
	"github.com/flashdeck/flashdeck/internal/di"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/service"
)

var vocabulary = [][2]string{
	{"el perro", "the dog"},
	{"el gato", "the cat"},
	{"la casa", "the house"},
	{"el libro", "the book"},
	{"la manzana", "the apple"},
	{"el agua", "the water"},
	{"la ciudad", "the city"},
	{"el árbol", "the tree"},
	{"la playa", "the beach"},
	{"el tren", "the train"},
}

var themeNames = []string{"Animals", "Home", "Nature", "Travel"}

func main() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	email := fs.String("email", "demo@flashdeck.local", "Email of the demo user")
	password := fs.String("password", "demo", "Password of the demo user")
	deckCount := fs.Int("decks", 3, "Number of decks to create")
	cardCount := fs.Int("cards", 20, "Flashcards per deck")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs.Args())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	injector := di.NewContainer()
	do.OverrideValue(injector, cfg)
	if err := di.Bootstrap(injector); err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	defer injector.Shutdown()

	users := do.MustInvoke[*service.UserService](injector)
	decks := do.MustInvoke[*service.DeckService](injector)
	themes := do.MustInvoke[*service.ThemeService](injector)
	cards := do.MustInvoke[*service.FlashcardService](injector)
	media := do.MustInvoke[*service.Media](injector)

	ctx := context.Background()
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	fmt.Printf("Seeding profile at: %s\n", cfg.Data.BasePath)

	if _, ok := users.GetUserByEmail(ctx, *email); !ok {
		if _, err := users.CreateUser(ctx, service.CreateUserInput{
			Username: "demo",
			Email:    *email,
			Password: *password,
			Avatar:   pngURI(rng),
		}); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("Created user %s\n", *email)
	}

	sess, err := users.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("Failed to log in: %v", err)
	}

	totalCards := 0
	for d := range *deckCount {
		deck, err := decks.CreateDeck(ctx, sess, service.CreateDeckInput{
			Title:       fmt.Sprintf("Spanish Vocabulary %d", d+1),
			Description: "Everyday nouns with pictures and pronunciation.",
			CoverImage:  pngURI(rng),
			Tags:        []string{"Spanish", "Vocabulary", fmt.Sprintf("Level %d", d+1)},
			IsPublic:    d%2 == 0,
		})
		if err != nil {
			log.Fatalf("Failed to create deck: %v", err)
		}

		themeIDs := make([]string, 0, len(themeNames))
		for _, name := range themeNames {
			theme, err := themes.CreateTheme(ctx, service.CreateThemeInput{
				DeckID:     deck.ID,
				Title:      name,
				CoverImage: pngURI(rng),
			})
			if err != nil {
				log.Fatalf("Failed to create theme: %v", err)
			}
			themeIDs = append(themeIDs, theme.ID)
		}

		for c := range *cardCount {
			word := vocabulary[rng.IntN(len(vocabulary))]
			input := service.CreateFlashcardInput{
				DeckID:  deck.ID,
				ThemeID: themeIDs[c%len(themeIDs)],
				Front:   domain.Side{Text: word[0], Image: pngURI(rng), Audio: audioURI(rng)},
				Back:    domain.Side{Text: word[1]},
			}
			if _, err := cards.CreateFlashcard(ctx, input); err != nil {
				log.Printf("Failed to create flashcard: %v", err)
				continue
			}
			totalCards++
		}

		fmt.Printf("Created deck %q (%s) with %d themes\n", deck.Title, deck.ID, len(themeIDs))
	}

	fmt.Println("Waiting for media migration...")
	settleCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := media.Settle(settleCtx); err != nil {
		log.Printf("Media migration did not finish: %v", err)
	}

	fmt.Printf("\nDone! Created %d decks and %d flashcards.\n", *deckCount, totalCards)
}

// pngURI renders a small two-tone image as an inline data URI.
func pngURI(rng *rand.Rand) string {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	a := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
	b := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
	for y := range 32 {
		for x := range 32 {
			if x < y {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return datauri.Encode("image/png", buf.Bytes())
}

// audioURI returns a short placeholder clip.
func audioURI(rng *rand.Rand) string {
	clip := make([]byte, 256)
	copy(clip, "ID3")
	for i := 3; i < len(clip); i++ {
		clip[i] = byte(rng.IntN(256))
	}
	return datauri.Encode("audio/mpeg", clip)
}
