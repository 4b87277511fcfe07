/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package oracle

import (
	"fmt"
	"testing"

	"github.com/friendsincode/muninn_dj/internal/models"
)

func shortlistOf(n int) []ProvidedSong {
	songs := make([]ProvidedSong, 0, n)
	for i := 0; i < n; i++ {
		songs = append(songs, ProvidedSong{
			TrackID: fmt.Sprintf("id-%d", i),
			Title:   fmt.Sprintf("Short %d", i),
			Artist:  fmt.Sprintf("Artist %d", i),
		})
	}
	return songs
}

func TestShapeCandidatesBackfillsShortlist(t *testing.T) {
	shortlist := shortlistOf(10)

	// Oracle used 3 shortlist entries and invented 2 of its own.
	returned := []Candidate{
		{Title: "Short 0", Artist: "Artist 0"},
		{Title: "Novel One", Artist: "Someone"},
		{Title: "Short 4", Artist: "Artist 4"},
		{Title: "Short 7", Artist: "Artist 7"},
		{Query: "Novel Two - Someone Else"},
	}

	got := ShapeCandidates(returned, shortlist, 5, 10)

	var fromShort, novel int
	keys := make(map[string]bool, len(shortlist))
	for _, song := range shortlist {
		keys[models.HistoryKey(song.Title, song.Artist)] = true
	}
	for _, cand := range got {
		if keys[candidateKey(cand)] {
			fromShort++
		} else {
			novel++
		}
	}

	if fromShort != 5 {
		t.Errorf("shortlist-sourced = %d, want 5 after backfill", fromShort)
	}
	if novel != 2 {
		t.Errorf("novel = %d, want 2", novel)
	}

	// Backfill must not re-use entries the oracle already picked.
	seen := make(map[string]bool, len(got))
	for _, cand := range got {
		key := candidateKey(cand)
		if seen[key] {
			t.Errorf("duplicate candidate %q", key)
		}
		seen[key] = true
	}
}

func TestShapeCandidatesCapsShortlistAndTotal(t *testing.T) {
	shortlist := shortlistOf(10)

	var returned []Candidate
	for i := 0; i < 8; i++ {
		returned = append(returned, Candidate{Title: fmt.Sprintf("Short %d", i), Artist: fmt.Sprintf("Artist %d", i)})
	}
	for i := 0; i < 8; i++ {
		returned = append(returned, Candidate{Title: fmt.Sprintf("Own %d", i), Artist: "Oracle"})
	}

	got := ShapeCandidates(returned, shortlist, 5, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}

	keys := make(map[string]bool, len(shortlist))
	for _, song := range shortlist {
		keys[models.HistoryKey(song.Title, song.Artist)] = true
	}
	var fromShort int
	for _, cand := range got {
		if keys[candidateKey(cand)] {
			fromShort++
		}
	}
	if fromShort != 5 {
		t.Errorf("shortlist-sourced = %d, want capped at 5", fromShort)
	}
}

func TestShapeCandidatesEmptyShortlist(t *testing.T) {
	returned := []Candidate{
		{Title: "A", Artist: "B"},
		{Query: "C - D"},
	}
	got := ShapeCandidates(returned, nil, 5, 10)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}
