package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jrhatch/mnemo/pkg/embedding"
	"github.com/jrhatch/mnemo/pkg/memory"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all conversations and the profile to a JSON file",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a previously exported JSON file",
	Long: `Import messages and profile data from an export file.

Messages keep their original IDs and timestamps. Content is
re-embedded with the configured provider, so importing with a
different embedding model re-indexes the archive under that model.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().String("out", "mnemo-export.json", "Output file path")
	importCmd.Flags().String("in", "", "Input file path")
}

// exportFile is the on-disk archive format.
type exportFile struct {
	ExportedAt time.Time        `json:"exported_at"`
	Profile    memory.Profile   `json:"profile"`
	Messages   []memory.Message `json:"messages"`
}

func runExport(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("out")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	prof, err := a.facade.Profile(ctx)
	if err != nil {
		return err
	}

	ids, err := a.store.ConversationIDs(ctx)
	if err != nil {
		return err
	}

	archive := exportFile{
		ExportedAt: time.Now().UTC(),
		Profile:    prof,
	}

	bar := progressbar.Default(int64(len(ids)), "exporting conversations")
	for _, id := range ids {
		messages, err := a.facade.ConversationHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("export conversation %s: %w", id, err)
		}
		archive.Messages = append(archive.Messages, messages...)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Printf("exported %d message(s) from %d conversation(s) to %s\n",
		len(archive.Messages), len(ids), outPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	inPath, _ := cmd.Flags().GetString("in")
	if inPath == "" {
		return fmt.Errorf("--in is required")
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var archive exportFile
	if err := json.Unmarshal(data, &archive); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	if archive.Profile.Name != "" || archive.Profile.Role != "" || archive.Profile.Organization != "" {
		if err := a.facade.SetUserIdentity(ctx,
			archive.Profile.Name, archive.Profile.Role, archive.Profile.Organization); err != nil {
			return err
		}
	}
	for _, fact := range archive.Profile.Facts {
		if err := a.facade.AddUserFact(ctx, fact); err != nil {
			return fmt.Errorf("import fact: %w", err)
		}
	}

	imported, skipped := 0, 0
	bar := progressbar.Default(int64(len(archive.Messages)), "importing messages")
	for _, msg := range archive.Messages {
		if _, err := a.facade.RestoreMessage(ctx, msg); err != nil {
			// An unavailable embedder skips the message instead of
			// aborting a long import.
			if errors.Is(err, embedding.ErrUnavailable) {
				skipped++
				_ = bar.Add(1)
				continue
			}
			return fmt.Errorf("import message %s: %w", msg.ID, err)
		}
		imported++
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	// A single enforcement pass after the bulk load, rather than per append.
	if _, err := a.facade.Enforce(ctx); err != nil {
		a.logger.Warn("post-import enforcement failed", "err", err)
	}

	fmt.Printf("imported %d message(s) and %d fact(s) from %s (%d skipped)\n",
		imported, len(archive.Profile.Facts), inPath, skipped)
	return nil
}
