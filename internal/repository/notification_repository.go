package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"futuresbot/internal/models"
)

// NotificationRepository - журнал событий аудита (таблица notifications)
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление и проставляет ID
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	var meta sql.NullString
	if len(n.Meta) > 0 {
		b, err := json.Marshal(n.Meta)
		if err != nil {
			return err
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, symbol, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		n.Timestamp,
		n.Type,
		n.Severity,
		n.Symbol,
		n.Message,
		meta,
	).Scan(&n.ID)
}

// GetRecent возвращает последние N уведомлений, новые первыми
func (r *NotificationRepository) GetRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, symbol, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`
	return r.query(ctx, query, limit)
}

// GetByTypes возвращает последние N уведомлений указанных типов
func (r *NotificationRepository) GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	if len(types) == 0 {
		return r.GetRecent(ctx, limit)
	}

	placeholders := make([]string, len(types))
	args := make([]interface{}, 0, len(types)+1)
	for i, t := range types {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args = append(args, t)
	}
	args = append(args, limit)

	query := `
		SELECT id, timestamp, type, severity, symbol, message, meta
		FROM notifications
		WHERE type IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY timestamp DESC
		LIMIT $` + strconv.Itoa(len(types)+1)
	return r.query(ctx, query, args...)
}

// DeleteOlderThan удаляет уведомления старше before, возвращает число удаленных
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE timestamp < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var meta sql.NullString
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &n.Symbol, &n.Message, &meta); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &n.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
