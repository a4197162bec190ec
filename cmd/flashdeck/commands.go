package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/backup"
	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/di/providers"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/service"
)

type command struct {
	summary string
	// prepare may adjust the configuration before any store is opened.
	prepare func(cfg *config.Config) error
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"serve":         {summary: "Run periodic media and share code maintenance until interrupted", run: runServe},
	"demo":          {summary: "Run the create, export and import walkthrough in a scratch profile", prepare: prepareDemo, run: runDemo},
	"export":        {summary: "Write a deck as a self-contained export document", run: runExport},
	"import":        {summary: "Import an export document as a new deck", run: runImport},
	"resync":        {summary: "Replace an imported deck's content from a newer export", run: runResync},
	"share":         {summary: "Create a share code for a deck", run: runShare},
	"resolve":       {summary: "Print the deck a share code points at", run: runResolve},
	"search":        {summary: "Search decks by title, description, author or tag", run: runSearch},
	"reindex":       {summary: "Rebuild the deck search index from the record store", run: runReindex},
	"scan-media":    {summary: "Report inline and referenced media per collection", run: runScanMedia},
	"migrate-media": {summary: "Move every inline media value into the media store", run: runMigrateMedia},
	"cleanup-media": {summary: "Drop inline copies of media that is safely stored", run: runCleanupMedia},
	"gc-media":      {summary: "Delete stored media no record references", run: runGCMedia},
	"backup":        {summary: "Write a full profile backup archive", run: runBackup},
	"backups":       {summary: "List profile backups, newest first", run: runBackups},
	"restore":       {summary: "Restore records and media from a backup archive", run: runRestore},
}

// app gives commands access to the container.
type app struct {
	injector do.Injector
	out      io.Writer
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// login opens a session from flags, falling back to FLASHDECK_EMAIL and
// FLASHDECK_PASSWORD.
func (a *app) login(ctx context.Context, email, password string) (*domain.Session, error) {
	if email == "" {
		email = os.Getenv("FLASHDECK_EMAIL")
	}
	if password == "" {
		password = os.Getenv("FLASHDECK_PASSWORD")
	}
	if email == "" || password == "" {
		return nil, errors.New("credentials required: use -email and -password")
	}
	return do.MustInvoke[*service.UserService](a.injector).Login(ctx, email, password)
}

// credentialFlags registers the login flags on fs.
func credentialFlags(fs *flag.FlagSet) (email, password *string) {
	email = fs.String("email", "", "Email of the acting user")
	password = fs.String("password", "", "Password of the acting user")
	return email, password
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runServe(ctx context.Context, a *app, _ []string) error {
	log := do.MustInvoke[*logger.Logger](a.injector)
	_ = do.MustInvoke[*providers.MaintenanceJob](a.injector)

	log.Info("FlashDeck maintenance running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	deckID := fs.String("deck", "", "Deck to export")
	output := fs.String("o", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *deckID == "" {
		return errors.New("-deck is required")
	}

	export, err := do.MustInvoke[*service.ShareService](a.injector).ExportDeck(ctx, *deckID)
	if err != nil {
		return err
	}
	data, err := service.EncodeExport(export)
	if err != nil {
		return err
	}

	if *output == "" {
		_, err = fmt.Fprintln(a.out, string(data))
		return err
	}
	return os.WriteFile(*output, data, 0o644)
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	email, password := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	export, err := decodeExportArg(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := a.login(ctx, *email, *password)
	if err != nil {
		return err
	}

	deckID, err := do.MustInvoke[*service.ShareService](a.injector).ImportDeck(ctx, sess, export, sess.UserID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, deckID)
	return err
}

func runResync(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resync", flag.ContinueOnError)
	email, password := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	export, err := decodeExportArg(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := a.login(ctx, *email, *password)
	if err != nil {
		return err
	}

	updated, err := do.MustInvoke[*service.ShareService](a.injector).UpdateFromExport(ctx, sess, export)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("no imported copy of deck %s found", export.OriginalID)
	}
	_, err = fmt.Fprintln(a.out, "updated")
	return err
}

func decodeExportArg(path string) (*domain.SharedDeckExport, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return service.DecodeExport(data)
}

func runShare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("share", flag.ContinueOnError)
	deckID := fs.String("deck", "", "Deck to share")
	days := fs.Int("days", 0, "Days until the code expires (default: configured expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *deckID == "" {
		return errors.New("-deck is required")
	}

	code, err := do.MustInvoke[*service.ShareService](a.injector).CreateShareCode(ctx, *deckID, *days)
	if err != nil {
		return err
	}
	return a.printJSON(code)
}

func runResolve(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: resolve <code>")
	}
	deck, ok := do.MustInvoke[*service.ShareService](a.injector).ResolveShareCode(ctx, args[0])
	if !ok {
		return fmt.Errorf("share code %s is unknown or expired", args[0])
	}
	return a.printJSON(deck)
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	email, password := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Anonymous searches only see public and published decks.
	var sess *domain.Session
	if *email != "" || os.Getenv("FLASHDECK_EMAIL") != "" {
		var err error
		if sess, err = a.login(ctx, *email, *password); err != nil {
			return err
		}
	}

	decks, err := do.MustInvoke[*service.DeckService](a.injector).SearchDecks(ctx, sess, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	for _, d := range decks {
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", d.ID, d.Title, d.AuthorName)
	}
	return nil
}

func runReindex(ctx context.Context, a *app, _ []string) error {
	cfg := do.MustInvoke[*config.Config](a.injector)
	if !cfg.Search.Enabled {
		return errors.New("search is disabled")
	}

	count, err := a.reindex(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "indexed %d decks\n", count)
	return err
}

// reindex rebuilds the search index from the record store.
func (a *app) reindex(ctx context.Context) (int, error) {
	index := do.MustInvoke[*providers.SearchIndexHandle](a.injector)
	if err := index.Rebuild(); err != nil {
		return 0, err
	}
	return do.MustInvoke[*service.DeckService](a.injector).ReindexDecks(ctx), nil
}

func runBackup(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	noMedia := fs.Bool("no-media", false, "Leave image and audio blobs out of the archive")
	noStudy := fs.Bool("no-study", false, "Leave study sessions out of the archive")
	output := fs.String("o", "", "Output file (default: a timestamped file in the backup directory)")
	keep := fs.Int("keep", 0, "Delete all but this many newest backups afterwards (0 keeps all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := do.MustInvoke[*backup.BackupService](a.injector)
	result, err := svc.Create(ctx, backup.BackupOptions{
		IncludeMedia: !*noMedia,
		IncludeStudy: !*noStudy,
		OutputPath:   *output,
	})
	if err != nil {
		return err
	}

	if *keep > 0 {
		if _, err := svc.Prune(ctx, *keep); err != nil {
			return err
		}
	}
	return a.printJSON(result)
}

func runBackups(ctx context.Context, a *app, _ []string) error {
	backups, err := do.MustInvoke[*backup.BackupService](a.injector).List(ctx)
	if err != nil {
		return err
	}
	for _, b := range backups {
		fmt.Fprintf(a.out, "%s\t%s\t%d bytes\t%d decks\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size, b.Counts.Decks)
	}
	return nil
}

func runRestore(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	mode := fs.String("mode", string(backup.RestoreModeMerge), "Restore mode: full, merge or study_only")
	strategy := fs.String("strategy", string(backup.MergeKeepLocal), "Merge conflict strategy: keep_local, keep_backup or newest")
	dryRun := fs.Bool("dry-run", false, "Report what would be restored without writing")
	validateOnly := fs.Bool("validate", false, "Only check the archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: restore [flags] <backup id or path>")
	}

	path, err := a.backupPath(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	restore := do.MustInvoke[*backup.RestoreService](a.injector)
	if *validateOnly {
		validation, err := restore.Validate(ctx, path)
		if err != nil {
			return err
		}
		return a.printJSON(validation)
	}

	result, err := restore.Restore(ctx, path, backup.RestoreOptions{
		Mode:          backup.RestoreMode(*mode),
		MergeStrategy: backup.MergeStrategy(*strategy),
		DryRun:        *dryRun,
	})
	if err != nil {
		return err
	}

	if !*dryRun && do.MustInvoke[*config.Config](a.injector).Search.Enabled {
		if _, err := a.reindex(ctx); err != nil {
			return fmt.Errorf("reindex after restore: %w", err)
		}
	}
	return a.printJSON(result)
}

// backupPath resolves an argument naming either an archive file or a backup id.
func (a *app) backupPath(ctx context.Context, arg string) (string, error) {
	if strings.ContainsRune(arg, filepath.Separator) || strings.HasSuffix(arg, ".zip") {
		return arg, nil
	}
	info, err := do.MustInvoke[*backup.BackupService](a.injector).Get(ctx, arg)
	if err != nil {
		return "", err
	}
	return info.Path, nil
}

func runScanMedia(ctx context.Context, a *app, _ []string) error {
	return a.printJSON(do.MustInvoke[*mediabridge.Migrator](a.injector).Scan(ctx))
}

func runMigrateMedia(ctx context.Context, a *app, _ []string) error {
	migrated, err := do.MustInvoke[*mediabridge.Migrator](a.injector).MigrateAll(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "migrated %d records\n", migrated)
	return err
}

func runCleanupMedia(ctx context.Context, a *app, _ []string) error {
	cleaned, err := do.MustInvoke[*mediabridge.Migrator](a.injector).CleanupInline(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "removed %d inline copies\n", cleaned)
	return err
}

func runGCMedia(ctx context.Context, a *app, _ []string) error {
	deleted, err := do.MustInvoke[*mediabridge.Migrator](a.injector).CollectGarbage(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "deleted %d unreferenced blobs\n", deleted)
	return err
}
