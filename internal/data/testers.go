package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

const testerColumns = `id, discord_id, username, email, given_name, family_name,
	registration_message_id, leave_message_ids, updated_at`

func scanTester(row scanner) (*domain.Tester, error) {
	var t domain.Tester
	var leave string
	var updatedAt int64
	if err := row.Scan(&t.ID, &t.DiscordID, &t.Username, &t.Email, &t.GivenName, &t.FamilyName,
		&t.RegistrationMessageID, &leave, &updatedAt); err != nil {
		return nil, err
	}
	ids, err := decodeIDs(leave)
	if err != nil {
		return nil, err
	}
	t.LeaveMessageIDs = ids
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return &t, nil
}

func (s *Store) queryTester(ctx context.Context, op, where string, args ...any) (*domain.Tester, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+testerColumns+` FROM testers WHERE `+where, args...)
	t, err := scanTester(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	return t, nil
}

// FindTester matches a tester by Discord user ID
func (s *Store) FindTester(ctx context.Context, discordID string) (*domain.Tester, error) {
	return s.queryTester(ctx, "find tester", `discord_id = ?`, discordID)
}

// FetchTester gets a tester by record ID
func (s *Store) FetchTester(ctx context.Context, id string) (*domain.Tester, error) {
	return s.queryTester(ctx, "fetch tester", `id = ?`, id)
}

// FindTesterByLeaveMessage finds the tester a leave notice belongs to
func (s *Store) FindTesterByLeaveMessage(ctx context.Context, messageID string) (*domain.Tester, error) {
	return s.queryTester(ctx, "find tester by leave message",
		`EXISTS (SELECT 1 FROM json_each(testers.leave_message_ids) WHERE value = ?)`, messageID)
}

// UpsertTester creates or updates the tester with the same Discord ID.
// Nothing is written when no field changed.
func (s *Store) UpsertTester(ctx context.Context, tester *domain.Tester) (*domain.Tester, error) {
	existing, err := s.FindTester(ctx, tester.DiscordID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.SameFields(tester) {
		return existing, nil
	}

	saved := *tester
	saved.UpdatedAt = s.now()

	if existing == nil {
		saved.ID = newID()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO testers (`+testerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, saved.ID, saved.DiscordID, saved.Username, saved.Email, saved.GivenName, saved.FamilyName,
			saved.RegistrationMessageID, encodeIDs(saved.LeaveMessageIDs), saved.UpdatedAt.UnixMilli())
		if err != nil {
			return nil, domain.NewStoreError("insert tester", err)
		}
		return &saved, nil
	}

	saved.ID = existing.ID
	_, err = s.db.ExecContext(ctx, `
		UPDATE testers SET username = ?, email = ?, given_name = ?, family_name = ?,
			registration_message_id = ?, leave_message_ids = ?, updated_at = ?
		WHERE id = ?
	`, saved.Username, saved.Email, saved.GivenName, saved.FamilyName,
		saved.RegistrationMessageID, encodeIDs(saved.LeaveMessageIDs), saved.UpdatedAt.UnixMilli(), saved.ID)
	if err != nil {
		return nil, domain.NewStoreError("update tester", err)
	}
	return &saved, nil
}
