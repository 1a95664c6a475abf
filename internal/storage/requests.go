package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
)

// ErrRequestNotFound is returned when approving or rejecting an unknown request
var ErrRequestNotFound = errors.New("admin request not found")

const requestSelect = `
	SELECT ar.id, ar.user_id, ar.request_text, ar.status, ar.processed_at,
	       u.marzban_username AS username
	FROM admin_requests ar
	LEFT JOIN users u ON ar.user_id = u.telegram_id`

// CreateRequest stores a new pending request and returns its ID
func (s *Store) CreateRequest(ctx context.Context, userID int64, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &apperrors.ValidationError{Field: "request_text", Message: "must not be empty"}
	}

	var id int64
	err := s.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := s.Execute(ctx, tx,
			`INSERT INTO admin_requests (user_id, request_text) VALUES (?, ?)`,
			userID, text,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRequest returns a single request, or nil
func (s *Store) GetRequest(ctx context.Context, id int64) (*models.AdminRequest, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var req models.AdminRequest
	found, err := s.get(ctx, db, &req, requestSelect+` WHERE ar.id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	return &req, nil
}

// GetRequests returns requests newest first. An empty status returns all of them.
func (s *Store) GetRequests(ctx context.Context, status models.RequestStatus) ([]models.AdminRequest, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var reqs []models.AdminRequest
	if status == "" {
		err = s.selectRows(ctx, db, &reqs, requestSelect+` ORDER BY ar.id DESC`)
	} else {
		err = s.selectRows(ctx, db, &reqs, requestSelect+` WHERE ar.status = ? ORDER BY ar.id DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// ApproveRequest moves a pending request to approved. It reports false when the
// request was already approved or rejected, in which case nothing changes.
func (s *Store) ApproveRequest(ctx context.Context, id int64) (bool, error) {
	return s.processRequest(ctx, id, models.RequestApproved)
}

// RejectRequest moves a pending request to rejected. It reports false when the
// request was already approved or rejected, in which case nothing changes.
func (s *Store) RejectRequest(ctx context.Context, id int64) (bool, error) {
	return s.processRequest(ctx, id, models.RequestRejected)
}

// processRequest applies a pending -> terminal transition. The status check and
// the update are a single statement, so the first of two racing calls wins.
func (s *Store) processRequest(ctx context.Context, id int64, to models.RequestStatus) (bool, error) {
	changed := false
	err := s.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := s.Execute(ctx, tx, `
			UPDATE admin_requests
			SET status = ?, processed_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`,
			to, id, models.RequestPending,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			changed = true
			return nil
		}

		var one int
		found, err := s.get(ctx, tx, &one, `SELECT 1 FROM admin_requests WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrRequestNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.logger.Infof("Admin request %d %s", id, to)
	} else {
		s.logger.Debugf("Admin request %d already processed", id)
	}
	return changed, nil
}

// GetStats returns aggregate counts read in one transaction
func (s *Store) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	err := s.Transaction(ctx, func(tx *sqlx.Tx) error {
		counts := []struct {
			dest  *int
			query string
		}{
			{&stats.TotalUsers, `SELECT COUNT(*) FROM users`},
			{&stats.ActiveStaff, `SELECT COUNT(*) FROM users WHERE is_admin = TRUE OR is_moderator = TRUE`},
			{&stats.PendingRequests, `SELECT COUNT(*) FROM admin_requests WHERE status = 'pending'`},
			{&stats.BannedUsers, `SELECT COUNT(*) FROM users WHERE is_banned = TRUE`},
		}
		for _, c := range counts {
			if _, err := s.get(ctx, tx, c.dest, c.query); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
