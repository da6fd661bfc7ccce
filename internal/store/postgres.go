package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fitbet/bet-engine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation = "23505"

	constraintSlot      = "schedule_entries_slot_key"
	constraintActiveBet = "bets_one_active_per_placer"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Stake amounts are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, image FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Image)
	if err != nil {
		return nil, wrapNotFound(fmt.Sprintf("get user %s", id), err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, image FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Image); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpsertUser(ctx context.Context, u *model.User) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, image)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, image = EXCLUDED.image
		 RETURNING id`,
		u.ID, u.Name, u.Email, u.Image,
	).Scan(&u.ID)
}

// --- Schedules ---

const scheduleColumns = `id, user_id, date, exercise_type, time_slot, completed, completed_at, created_at`

func (s *PostgresStore) CreateSchedule(ctx context.Context, e *model.ScheduleEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schedule_entries (`+scheduleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, e.Date, e.ExerciseType, string(e.TimeSlot),
		e.Completed, e.CompletedAt, e.CreatedAt,
	)
	if isUniqueViolation(err, constraintSlot) {
		return ErrSlotTaken
	}
	return err
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries WHERE id = $1`, id)
	e, err := scanSchedule(row)
	if err != nil {
		return nil, wrapNotFound(fmt.Sprintf("get schedule %s", id), err)
	}
	return e, nil
}

func (s *PostgresStore) ListSchedulesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]model.ScheduleEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries
		 WHERE user_id = $1
		   AND ($2::TIMESTAMPTZ IS NULL OR date >= $2)
		   AND ($3::TIMESTAMPTZ IS NULL OR date <= $3)
		 ORDER BY date`,
		ownerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// SetScheduleCompleted locks the row, captures the prior flag and writes the
// new one in a single statement.
func (s *PostgresStore) SetScheduleCompleted(ctx context.Context, id string, completed bool, completedAt *time.Time) (bool, error) {
	var previous bool
	err := s.pool.QueryRow(ctx,
		`UPDATE schedule_entries e
		 SET completed = $2, completed_at = $3
		 FROM (SELECT id, completed FROM schedule_entries WHERE id = $1 FOR UPDATE) old
		 WHERE e.id = old.id
		 RETURNING old.completed`,
		id, completed, completedAt,
	).Scan(&previous)
	if err != nil {
		return false, wrapNotFound(fmt.Sprintf("set schedule %s completed", id), err)
	}
	return previous, nil
}

// DeleteScheduleIfNoActiveBets locks the entry row before checking for ACTIVE
// bets. A placement holds a share lock on the same row until it commits, so
// the check always sees its bet.
func (s *PostgresStore) DeleteScheduleIfNoActiveBets(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete schedule %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM schedule_entries WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		return wrapNotFound(fmt.Sprintf("delete schedule %s", id), err)
	}

	var active bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bets WHERE schedule_id = $1 AND status = 'ACTIVE')`,
		id).Scan(&active); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	if active {
		return ErrActiveBets
	}

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("delete schedule %s: commit: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListOverdueSchedules(ctx context.Context, before time.Time) ([]model.ScheduleEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries e
		 WHERE e.completed = FALSE
		   AND e.date < $1
		   AND EXISTS (
		       SELECT 1 FROM bets b WHERE b.schedule_id = e.id AND b.status = 'ACTIVE'
		   )
		 ORDER BY e.date`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// --- Bets ---

const betColumns = `id, placer_id, target_id, schedule_id, amount::TEXT, prediction,
	status, result, created_at, resolved_at`

// CreateBet inserts only while the referenced entry exists and is not
// completed, holding a share lock on it until commit. A toggle or delete
// running concurrently waits on that lock; if it wins instead, the row is
// re-checked after the wait and nothing is inserted. The partial unique index
// rejects a second ACTIVE bet by the same placer.
func (s *PostgresStore) CreateBet(ctx context.Context, b *model.Bet) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO bets (id, placer_id, target_id, schedule_id, amount, prediction, status, created_at)
		 SELECT $1::TEXT, $2::TEXT, $3::TEXT, e.id, $5::NUMERIC, $6::BOOLEAN, 'ACTIVE', $7::TIMESTAMPTZ
		 FROM schedule_entries e
		 WHERE e.id = $4 AND NOT e.completed
		 FOR SHARE`,
		b.ID, b.PlacerID, b.TargetID, b.ScheduleID,
		b.Amount.String(), b.Prediction, b.CreatedAt,
	)
	if isUniqueViolation(err, constraintActiveBet) {
		return ErrDuplicateActiveBet
	}
	if err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing inserted: report why.
	var completed bool
	err = s.pool.QueryRow(ctx,
		`SELECT completed FROM schedule_entries WHERE id = $1`, b.ScheduleID).Scan(&completed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("insert bet: recheck schedule %s: %w", b.ScheduleID, err)
	case completed:
		return ErrScheduleCompleted
	}
	return fmt.Errorf("insert bet: schedule %s rejected the bet", b.ScheduleID)
}

func (s *PostgresStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		return nil, wrapNotFound(fmt.Sprintf("get bet %s", id), err)
	}
	return b, nil
}

func (s *PostgresStore) ListBetsBySchedule(ctx context.Context, scheduleID string, activeOnly bool) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets
		 WHERE schedule_id = $1 AND (NOT $2 OR status = 'ACTIVE')
		 ORDER BY created_at`, scheduleID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) ListBetsByPlacer(ctx context.Context, placerID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE placer_id = $1 ORDER BY created_at DESC`, placerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) ListBetsByTarget(ctx context.Context, targetID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE target_id = $1 ORDER BY created_at DESC`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

// ResolveBet is a conditional update on status; zero affected rows means a
// concurrent resolver already settled the bet.
func (s *PostgresStore) ResolveBet(ctx context.Context, id string, res model.Resolution) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = 'RESOLVED', result = $2, resolved_at = $3
		 WHERE id = $1 AND status = 'ACTIVE'`,
		id, string(res.Outcome), res.ResolvedAt)
	if err != nil {
		return false, fmt.Errorf("resolve bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("resolve bet %s: %w", id, err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// --- Notifications ---

func (s *PostgresStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, data, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, data, n.Read, n.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, title, message, data, read, created_at
		 FROM notifications
		 WHERE user_id = $1 AND (NOT $2 OR read = FALSE)
		 ORDER BY created_at DESC
		 LIMIT $3`, userID, unreadOnly, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message,
			&n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetNotificationsRead(ctx context.Context, userID string, ids []string, read bool) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = $3
		 WHERE user_id = $1 AND id = ANY($2) AND read <> $3`,
		userID, ids, read)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string, typ model.NotificationType) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE user_id = $1 AND read = FALSE AND ($2::TEXT = '' OR type = $2::TEXT)`,
		userID, string(typ)).Scan(&count)
	return count, err
}

// --- scanning helpers ---

func scanSchedule(row pgx.Row) (*model.ScheduleEntry, error) {
	var e model.ScheduleEntry
	var slot string
	if err := row.Scan(&e.ID, &e.UserID, &e.Date, &e.ExerciseType, &slot,
		&e.Completed, &e.CompletedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.TimeSlot = model.TimeSlot(slot)
	return &e, nil
}

func scanSchedules(rows pgx.Rows) ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanBet(row pgx.Row) (*model.Bet, error) {
	var b model.Bet
	var amount, status string
	var result *string
	var resolvedAt *time.Time

	if err := row.Scan(&b.ID, &b.PlacerID, &b.TargetID, &b.ScheduleID, &amount, &b.Prediction,
		&status, &result, &b.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount for bet %s: %w", b.ID, err)
	}
	if model.BetStatus(status) == model.BetResolved && result != nil && resolvedAt != nil {
		b.Resolution = &model.Resolution{Outcome: model.Outcome(*result), ResolvedAt: *resolvedAt}
	}
	return &b, nil
}

func scanBets(rows pgx.Rows) ([]model.Bet, error) {
	var bets []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
