package data

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// appRolesExpr collects the roles mapped to the app in column as a JSON array
func appRolesExpr(column string) string {
	return `(SELECT json_group_array(DISTINCT rr.role_id)
		FROM reaction_roles rr
		JOIN reaction_role_apps ra ON ra.reaction_role_id = rr.id
		WHERE ra.app_id = ` + column + `)`
}

var requestSelect = `SELECT r.id, r.tester_id, r.tester_discord_id, r.app_id, COALESCE(a.name, ''),
	` + appRolesExpr("r.app_id") + `,
	r.server_id, r.approval_channel_id, r.status, r.notification_message_id,
	r.further_notification_message_ids, r.removed, r.created_at
	FROM testing_requests r
	LEFT JOIN apps a ON a.id = r.app_id`

func scanRequest(row scanner) (*domain.TestingRequest, error) {
	var r domain.TestingRequest
	var roles, further, status string
	var removed int
	var createdAt int64
	if err := row.Scan(&r.ID, &r.TesterID, &r.TesterDiscordID, &r.AppID, &r.AppName, &roles,
		&r.ServerID, &r.ApprovalChannelID, &status, &r.NotificationMessageID,
		&further, &removed, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if r.AppRoleIDs, err = decodeIDs(roles); err != nil {
		return nil, err
	}
	if r.FurtherNotificationMessageIDs, err = decodeIDs(further); err != nil {
		return nil, err
	}
	r.Status = domain.RequestStatus(status)
	r.Removed = removed != 0
	r.Created = time.UnixMilli(createdAt)
	return &r, nil
}

func (s *Store) queryRequest(ctx context.Context, op, where string, args ...any) (*domain.TestingRequest, error) {
	row := s.db.QueryRowContext(ctx, requestSelect+` WHERE `+where+` ORDER BY r.created_at, r.rowid LIMIT 1`, args...)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	return r, nil
}

// ListRequests lists requests matching the filter, oldest first
func (s *Store) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]*domain.TestingRequest, error) {
	var where []string
	var args []any

	if filter.TesterDiscordID != "" {
		where = append(where, `r.tester_discord_id = ?`)
		args = append(args, filter.TesterDiscordID)
	}
	if len(filter.AppIDs) > 0 {
		where = append(where, `r.app_id IN (`+placeholders(len(filter.AppIDs))+`)`)
		for _, id := range filter.AppIDs {
			args = append(args, id)
		}
	}
	if filter.Approval != domain.ApprovalFilterAll {
		where = append(where, `r.status = ?`)
		args = append(args, string(filter.Approval))
	}
	if filter.ExcludeRemoved {
		where = append(where, `r.removed = 0`)
	}

	query := requestSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY r.created_at, r.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("list requests", err)
	}
	defer rows.Close()

	var requests []*domain.TestingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan request", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list requests", err)
	}
	return requests, nil
}

// AddRequest creates a request and returns it as stored
func (s *Store) AddRequest(ctx context.Context, request *domain.TestingRequest) (*domain.TestingRequest, error) {
	id := newID()
	status := request.Status
	if status == "" {
		status = domain.RequestStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO testing_requests (id, tester_id, tester_discord_id, app_id, server_id, approval_channel_id,
			status, notification_message_id, further_notification_message_ids, removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, request.TesterID, request.TesterDiscordID, request.AppID, request.ServerID, request.ApprovalChannelID,
		string(status), request.NotificationMessageID, encodeIDs(request.FurtherNotificationMessageIDs),
		boolInt(request.Removed), s.now().UnixMilli())
	if err != nil {
		return nil, domain.NewStoreError("insert request", err)
	}
	return s.FetchRequest(ctx, id)
}

// FetchRequest gets a request by record ID
func (s *Store) FetchRequest(ctx context.Context, id string) (*domain.TestingRequest, error) {
	return s.queryRequest(ctx, "fetch request", `r.id = ?`, id)
}

// FetchRequestByMessage finds the request any notification copy belongs to
func (s *Store) FetchRequestByMessage(ctx context.Context, messageID string) (*domain.TestingRequest, error) {
	return s.queryRequest(ctx, "fetch request by message", `r.notification_message_id = ?
		OR EXISTS (SELECT 1 FROM json_each(r.further_notification_message_ids) WHERE value = ?)`,
		messageID, messageID)
}

// UpdateRequest persists a request's mutable fields
func (s *Store) UpdateRequest(ctx context.Context, request *domain.TestingRequest) error {
	return s.UpdateRequests(ctx, []*domain.TestingRequest{request})
}

// UpdateRequests persists several requests in one transaction
func (s *Store) UpdateRequests(ctx context.Context, requests []*domain.TestingRequest) error {
	if len(requests) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStoreError("begin update requests", err)
	}
	defer tx.Rollback()

	for _, r := range requests {
		_, err := tx.ExecContext(ctx, `
			UPDATE testing_requests SET approval_channel_id = ?, status = ?, notification_message_id = ?,
				further_notification_message_ids = ?, removed = ?
			WHERE id = ?
		`, r.ApprovalChannelID, string(r.Status), r.NotificationMessageID,
			encodeIDs(r.FurtherNotificationMessageIDs), boolInt(r.Removed), r.ID)
		if err != nil {
			return domain.NewStoreError("update request "+r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStoreError("commit update requests", err)
	}
	return nil
}

// ListApprovalChannelIDs lists every channel notifications went to plus
// the guild default channels
func (s *Store) ListApprovalChannelIDs(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list approval channels", `
		SELECT approval_channel_id FROM testing_requests WHERE approval_channel_id != ''
		UNION
		SELECT json_extract(value, '$') FROM guild_config
		WHERE key = ? AND json_extract(value, '$') != ''
	`, domain.ConfigKeyDefaultApprovalsChannel)
}

func (s *Store) listStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, domain.NewStoreError(op, err)
		}
		if v.Valid && v.String != "" {
			out = append(out, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
