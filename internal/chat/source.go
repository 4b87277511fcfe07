/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package chat reads the operator chat log the engine reacts to. The engine
// never writes chat; it only polls forward from a cursor.
package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/muninn_dj/internal/models"
)

// Message is one chat line.
type Message struct {
	ID      string
	Sender  string
	Content string
	SentAt  time.Time
}

// signature bounds: enough context to detect change without retaining content.
const (
	signatureWindow  = 20
	signatureTrimLen = 120
)

// maxPollBatch bounds a single poll so a backlog can't stall the loop.
const maxPollBatch = 50

// Source reads chat messages from the relational store.
type Source struct {
	db *gorm.DB
}

// NewSource creates a chat source.
func NewSource(database *gorm.DB) *Source {
	return &Source{db: database}
}

// Since returns messages strictly after cursor, oldest first, and the new
// cursor (the newest returned timestamp). An unchanged cursor means nothing
// new.
func (s *Source) Since(ctx context.Context, cursor time.Time) ([]Message, time.Time, error) {
	var rows []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("created_at > ?", cursor).
		Order("created_at ASC").
		Limit(maxPollBatch).
		Find(&rows).Error
	if err != nil {
		return nil, cursor, fmt.Errorf("poll chat: %w", err)
	}

	messages := make([]Message, 0, len(rows))
	newCursor := cursor
	for _, row := range rows {
		messages = append(messages, Message{
			ID:      row.ID,
			Sender:  row.Sender,
			Content: row.Content,
			SentAt:  row.CreatedAt,
		})
		if row.CreatedAt.After(newCursor) {
			newCursor = row.CreatedAt
		}
	}
	return messages, newCursor, nil
}

// Recent returns the newest limit messages, oldest first.
func (s *Source) Recent(ctx context.Context, limit int) ([]Message, error) {
	var rows []models.ChatMessage
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load recent chat: %w", err)
	}

	messages := make([]Message, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = Message{
			ID:      row.ID,
			Sender:  row.Sender,
			Content: row.Content,
			SentAt:  row.CreatedAt,
		}
	}
	return messages, nil
}

// Signature produces a stable hash over a bounded window of messages so plan
// rechecks can detect chat changes without holding full content. Only the
// newest signatureWindow messages contribute; content is truncated.
func Signature(messages []Message) string {
	if len(messages) > signatureWindow {
		messages = messages[len(messages)-signatureWindow:]
	}

	var b strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if len(content) > signatureTrimLen {
			content = content[:signatureTrimLen]
		}
		b.WriteString(strconv.FormatInt(msg.SentAt.Unix(), 10))
		b.WriteByte('\t')
		b.WriteString(msg.Sender)
		b.WriteByte('\t')
		b.WriteString(content)
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
