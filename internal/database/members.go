package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"torch/internal/domain"
	"torch/internal/models"
)

// FindByEmail возвращает участника по email без учета регистра
func (db *DB) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	var doc string
	err := db.QueryRowContext(ctx, `SELECT document FROM members WHERE email = ?`, models.NormalizeEmail(email)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}

	var member models.Member
	if err := json.Unmarshal([]byte(doc), &member); err != nil {
		return nil, fmt.Errorf("failed to decode member document: %w", err)
	}
	return &member, nil
}

// Save создает или перезаписывает документ участника
func (db *DB) Save(ctx context.Context, member *models.Member) error {
	if member == nil || member.ID == "" || member.Email == "" {
		return fmt.Errorf("member id and email are required")
	}
	doc, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to encode member: %w", err)
	}

	query := `
        INSERT INTO members (id, email, tier, document, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            email = excluded.email,
            tier = excluded.tier,
            document = excluded.document,
            updated_at = excluded.updated_at
    `
	now := time.Now()
	_, err = db.ExecContext(ctx, query,
		member.ID,
		models.NormalizeEmail(member.Email),
		string(member.Tier),
		string(doc),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save member %s: %w", member.ID, err)
	}
	return nil
}

// List возвращает всех участников, упорядоченных по id
func (db *DB) List(ctx context.Context) ([]*models.Member, error) {
	rows, err := db.QueryContext(ctx, `SELECT document FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		var m models.Member
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("failed to decode member document: %w", err)
		}
		members = append(members, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// SeedMembers добавляет участников, которых еще нет в базе. Возвращает число вставленных.
func (db *DB) SeedMembers(ctx context.Context, members []*models.Member) (int, error) {
	inserted := 0
	for _, m := range members {
		_, err := db.FindByEmail(ctx, m.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrMemberNotFound) {
			return inserted, err
		}
		if err := db.Save(ctx, m); err != nil {
			return inserted, err
		}
		inserted++
	}
	if inserted > 0 {
		db.logger.Info().Int("count", inserted).Msg("Seeded members")
	}
	return inserted, nil
}
