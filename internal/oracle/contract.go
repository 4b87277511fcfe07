/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package oracle

import (
	"github.com/friendsincode/muninn_dj/internal/models"
)

// ShapeCandidates enforces the recommender output contract: at most
// maxFromShortlist of the returned candidates may come from the provided
// shortlist, an under-delivery from the shortlist is backfilled from the
// shortlist itself (skipping entries the oracle already used), and the
// combined list is truncated to total. Candidate order is preserved within
// each group, shortlist-sourced first.
func ShapeCandidates(returned []Candidate, shortlist []ProvidedSong, maxFromShortlist, total int) []Candidate {
	if maxFromShortlist < 0 {
		maxFromShortlist = 0
	}
	if total <= 0 {
		return nil
	}

	shortKeys := make(map[string]bool, len(shortlist))
	for _, song := range shortlist {
		shortKeys[models.HistoryKey(song.Title, song.Artist)] = true
	}

	var fromShort, novel []Candidate
	used := make(map[string]bool, maxFromShortlist)
	for _, cand := range returned {
		key := candidateKey(cand)
		switch {
		case key != "" && shortKeys[key]:
			if len(fromShort) < maxFromShortlist && !used[key] {
				fromShort = append(fromShort, cand)
				used[key] = true
			}
		default:
			novel = append(novel, cand)
		}
	}

	for _, song := range shortlist {
		if len(fromShort) >= maxFromShortlist {
			break
		}
		key := models.HistoryKey(song.Title, song.Artist)
		if used[key] {
			continue
		}
		fromShort = append(fromShort, Candidate{
			Title:     song.Title,
			Artist:    song.Artist,
			Rationale: "shortlist backfill",
		})
		used[key] = true
	}

	out := append(fromShort, novel...)
	if len(out) > total {
		out = out[:total]
	}
	return out
}

func candidateKey(cand Candidate) string {
	title, artist := cand.Title, cand.Artist
	if title == "" && artist == "" {
		title, artist = models.SplitQuery(cand.Query)
	}
	if title == "" {
		return ""
	}
	return models.HistoryKey(title, artist)
}
