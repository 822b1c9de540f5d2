package messagestore

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/messagestore/models"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var ErrInvalidRole = errors.New("invalid chat role")

var schema = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			role VARCHAR(10) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, created_at)`,
	},
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			role VARCHAR(10) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, created_at)`,
	},
}

// Timestamps come from the store and never fall behind the user's latest turn,
// so a wall clock stepping backwards cannot reorder a conversation.
var insertTurn = map[string]string{
	"postgres": `
		INSERT INTO chat_history (user_id, message, role, created_at)
		VALUES (?, ?, ?, GREATEST(NOW(), (SELECT MAX(created_at) FROM chat_history WHERE user_id = ?)))
		RETURNING id
	`,
	"sqlite3": `
		INSERT INTO chat_history (user_id, message, role, created_at)
		VALUES (?, ?, ?, MAX(
			strftime('%Y-%m-%d %H:%M:%f', 'now'),
			COALESCE((SELECT MAX(created_at) FROM chat_history WHERE user_id = ?), '')
		))
		RETURNING id
	`,
}

const (
	selectCreatedAt = `
		SELECT created_at
		FROM chat_history
		WHERE id = ?
	`

	countTurnsByRole = `
		SELECT COUNT(*)
		FROM chat_history
		WHERE user_id = ? AND role = ?
	`

	selectByUser = `
		SELECT id, user_id, message, role, created_at
		FROM chat_history
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	stmts, ok := schema[r.db.DriverName()]
	if !ok {
		return fmt.Errorf("no chat_history schema for driver %q", r.db.DriverName())
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate chat_history: %w", err)
		}
	}
	logrus.Info("chat_history table is ready")
	return nil
}

// InsertTurn appends a turn. The store assigns its id and timestamp.
func (r *Repository) InsertTurn(ctx context.Context, userID, message string, role models.Role) (*models.ChatTurn, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	query, ok := insertTurn[r.db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("no insert statement for driver %q", r.db.DriverName())
	}

	turn := &models.ChatTurn{
		UserID:  userID,
		Message: message,
		Role:    role,
	}
	if err := r.db.GetContext(ctx, &turn.ID, r.db.Rebind(query), userID, message, string(role), userID); err != nil {
		return nil, fmt.Errorf("store %s turn: %w", role, err)
	}
	if err := r.db.GetContext(ctx, &turn.Timestamp, r.db.Rebind(selectCreatedAt), turn.ID); err != nil {
		return nil, fmt.Errorf("read %s turn timestamp: %w", role, err)
	}
	return turn, nil
}

func (r *Repository) CountTurns(ctx context.Context, userID string, role models.Role) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(countTurnsByRole), userID, string(role)); err != nil {
		return 0, fmt.Errorf("count %s turns: %w", role, err)
	}
	return count, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.ChatTurn, error) {
	turns := []models.ChatTurn{}
	if err := r.db.SelectContext(ctx, &turns, r.db.Rebind(selectByUser), userID); err != nil {
		return nil, fmt.Errorf("select chat history: %w", err)
	}
	return turns, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
