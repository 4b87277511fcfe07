/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_dj/internal/db"
	"github.com/friendsincode/muninn_dj/internal/models"
)

var (
	resetForce       bool
	resetKeepCatalog bool
	resetKeepChat    bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset play history and selection state",
	Long: `Reset Muninn DJ to a fresh selection state.

This command will:
- Delete all play history records (cooldown scores return to 1.0)
- Delete all weight overrides
- Optionally delete the catalog and chat log too

WARNING: This action is irreversible!

Examples:
  # Interactive reset (will prompt for confirmation)
  muninndj reset

  # Force reset without confirmation
  muninndj reset --force

  # Reset everything including the catalog
  muninndj reset --force --keep-catalog=false
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetKeepCatalog, "keep-catalog", true, "Preserve catalog tracks")
	resetCmd.Flags().BoolVar(&resetKeepChat, "keep-chat", true, "Preserve chat messages")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Println()
		fmt.Println("WARNING: this will DELETE from Muninn DJ:")
		fmt.Println("  - All play history (cooldown state)")
		fmt.Println("  - All weight overrides")
		if !resetKeepCatalog {
			fmt.Println("  - ALL CATALOG TRACKS")
		}
		if !resetKeepChat {
			fmt.Println("  - All chat messages")
		}
		fmt.Println()
		fmt.Println("This action CANNOT be undone!")
		fmt.Println()

		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	logger.Info().
		Bool("keep_catalog", resetKeepCatalog).
		Bool("keep_chat", resetKeepChat).
		Msg("starting reset")

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Warn().Err(err).Msg("database close failed")
		}
	}()

	tables := []interface{}{
		&models.PlayHistoryRecord{},
		&models.WeightOverride{},
	}
	if !resetKeepCatalog {
		tables = append(tables, &models.CatalogTrack{})
	}
	if !resetKeepChat {
		tables = append(tables, &models.ChatMessage{})
	}

	logger.Info().Msg("dropping tables")
	for _, table := range tables {
		if err := database.Migrator().DropTable(table); err != nil {
			// Table might not exist yet
			logger.Debug().Err(err).Msg("drop table (may not exist)")
		}
	}

	logger.Info().Msg("creating fresh schema")
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger.Info().Msg("reset complete")
	fmt.Println()
	fmt.Println("Muninn DJ has been reset. Start the engine with: muninndj serve")
	fmt.Println()

	return nil
}
