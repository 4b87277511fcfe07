/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/muninn_dj/internal/db"
	"github.com/friendsincode/muninn_dj/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog data",
	Long:  "Import catalog tracks with audio features from external analysis tools",
}

var importCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Import catalog tracks from a JSONL file",
	Long:  "Import tracks from a JSON-lines file, one track object per line, upserting on (title, artist)",
	RunE:  runImportCatalog,
}

var (
	importFilePath string
	importDryRun   bool
	importReplace  bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importCatalogCmd)

	importCatalogCmd.Flags().StringVar(&importFilePath, "file", "", "Path to JSONL catalog file (required)")
	importCatalogCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and validate without writing")
	importCatalogCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete all existing catalog tracks first")
	importCatalogCmd.MarkFlagRequired("file")
}

// importTrack is the wire shape of one JSONL line.
type importTrack struct {
	Title             string   `json:"title"`
	Artist            string   `json:"artist"`
	Genre             string   `json:"genre"`
	Energy            float64  `json:"energy"`
	Valence           float64  `json:"valence"`
	LoudnessDB        float64  `json:"loudness_db"`
	Speechiness       float64  `json:"speechiness"`
	Acousticness      float64  `json:"acousticness"`
	Instrumentalness  float64  `json:"instrumentalness"`
	Liveness          float64  `json:"liveness"`
	TempoBPM          float64  `json:"tempo_bpm"`
	ProbabilityFactor *float64 `json:"probability_factor,omitempty"`
}

func (t importTrack) validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("missing title")
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"energy", t.Energy},
		{"valence", t.Valence},
		{"speechiness", t.Speechiness},
		{"acousticness", t.Acousticness},
		{"instrumentalness", t.Instrumentalness},
		{"liveness", t.Liveness},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s out of range [0,1]: %v", f.name, f.value)
		}
	}
	if t.TempoBPM < 0 {
		return fmt.Errorf("negative tempo_bpm: %v", t.TempoBPM)
	}
	return nil
}

func runImportCatalog(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().
		Str("file", importFilePath).
		Bool("dry_run", importDryRun).
		Msg("starting catalog import")

	file, err := os.Open(importFilePath)
	if err != nil {
		return fmt.Errorf("open catalog file: %w", err)
	}
	defer file.Close()

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var (
		imported int
		skipped  int
		warnings []string
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var batch []models.CatalogTrack
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var track importTrack
		if err := json.Unmarshal([]byte(raw), &track); err != nil {
			skipped++
			warnings = append(warnings, fmt.Sprintf("line %d: invalid JSON: %v", line, err))
			continue
		}
		if err := track.validate(); err != nil {
			skipped++
			warnings = append(warnings, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		factor := 1.0
		if track.ProbabilityFactor != nil {
			factor = *track.ProbabilityFactor
		}

		batch = append(batch, models.CatalogTrack{
			ID:                uuid.NewString(),
			Title:             strings.TrimSpace(track.Title),
			Artist:            strings.TrimSpace(track.Artist),
			Genre:             strings.TrimSpace(track.Genre),
			Energy:            track.Energy,
			Valence:           track.Valence,
			LoudnessDB:        track.LoudnessDB,
			Speechiness:       track.Speechiness,
			Acousticness:      track.Acousticness,
			Instrumentalness:  track.Instrumentalness,
			Liveness:          track.Liveness,
			TempoBPM:          track.TempoBPM,
			ProbabilityFactor: factor,
		})
		imported++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	if importDryRun {
		fmt.Printf("\nImport Preview:\n")
		fmt.Printf("  Tracks:  %d\n", imported)
		fmt.Printf("  Skipped: %d\n", skipped)
		printImportWarnings(warnings)
		fmt.Printf("\nRun without --dry-run to perform the import.\n")
		return nil
	}

	if importReplace {
		if err := database.Where("1 = 1").Delete(&models.CatalogTrack{}).Error; err != nil {
			return fmt.Errorf("clear existing catalog: %w", err)
		}
		logger.Info().Msg("existing catalog cleared")
	}

	// Upsert on (title, artist) so re-running an export refreshes features
	// instead of duplicating tracks.
	const chunk = 500
	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		err := database.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "title"}, {Name: "artist"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"genre", "energy", "valence", "loudness_db", "speechiness",
				"acousticness", "instrumentalness", "liveness", "tempo_bpm",
				"probability_factor", "updated_at",
			}),
		}).Create(batch[start:end]).Error
		if err != nil {
			return fmt.Errorf("write catalog batch: %w", err)
		}
	}

	fmt.Printf("\nImport Complete!\n")
	fmt.Printf("  Tracks:  %d imported\n", imported)
	fmt.Printf("  Skipped: %d\n", skipped)
	printImportWarnings(warnings)

	logger.Info().Int("imported", imported).Int("skipped", skipped).Msg("catalog import completed")
	return nil
}

func printImportWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Printf("\nWarnings:\n")
	for _, warning := range warnings {
		fmt.Printf("  - %s\n", warning)
	}
}
