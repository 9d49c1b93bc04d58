package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/contactsapp/message-dispatch/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects via the pgx stdlib driver.
func Open(url string) (*sql.DB, error) {
	return sql.Open("pgx", url)
}

const messageColumns = `
	id, contact_id, type, direction, recipient, subject, body, status,
	created_at, status_updated_at, delivered_at, error_message, provider, provider_message_id, error_kind
`

func (s *PostgresStore) Save(ctx context.Context, m *model.Message) error {
	statusUpdatedAt := m.StatusUpdatedAt
	if statusUpdatedAt.IsZero() {
		statusUpdatedAt = m.Timestamp
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		m.ID,
		m.ContactID,
		string(m.Type),
		string(m.Direction),
		m.Recipient,
		m.Subject,
		m.Body,
		string(m.Status),
		m.Timestamp.UTC(),
		statusUpdatedAt.UTC(),
		m.DeliveredAt,
		m.ErrorMessage,
		nullMeta(m.Metadata, model.MetaProvider),
		nullMeta(m.Metadata, model.MetaProviderMessageID),
		nullMeta(m.Metadata, model.MetaErrorKind),
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from []model.Status, to model.Status, change Change) (*model.Message, error) {
	from = allowedSources(from, to)
	if len(from) == 0 {
		return nil, s.classifyMiss(ctx, id)
	}

	guard, args := statusGuard(from, 8)
	args = append([]any{
		id,
		string(to),
		change.ErrorMessage,
		change.DeliveredAt,
		nullMeta(change.Metadata, model.MetaProvider),
		nullMeta(change.Metadata, model.MetaProviderMessageID),
		nullMeta(change.Metadata, model.MetaErrorKind),
	}, args...)

	row := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET status = $2,
		    status_updated_at = now(),
		    error_message = $3,
		    delivered_at = $4,
		    provider = $5,
		    provider_message_id = $6,
		    error_kind = $7
		WHERE id = $1 AND status IN (`+guard+`)
		RETURNING `+messageColumns+`
	`, args...)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyMiss(ctx, id)
	}
	return m, err
}

func (s *PostgresStore) UpdateDraft(ctx context.Context, id string, fields DraftFields) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET recipient = COALESCE($2, recipient),
		    subject = COALESCE($3, subject),
		    body = COALESCE($4, body)
		WHERE id = $1 AND status = 'draft'
		RETURNING `+messageColumns+`
	`, id, fields.Recipient, fields.Subject, fields.Body)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyMiss(ctx, id)
	}
	return m, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string, allowed ...model.Status) error {
	guard, args := statusGuard(allowed, 2)
	args = append([]any{id}, args...)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id = $1 AND status IN (`+guard+`)
	`, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ListByContact(ctx context.Context, contactID string, f ListFilter) ([]model.Message, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE contact_id = $1
	`
	args := []any{contactID}

	if f.Direction != nil {
		args = append(args, string(*f.Direction))
		query += fmt.Sprintf(" AND direction = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SweepSending(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'failed',
		    status_updated_at = now(),
		    error_message = $2,
		    provider = NULL,
		    provider_message_id = NULL,
		    error_kind = NULL
		WHERE status = 'sending' AND status_updated_at < $1
	`, cutoff.UTC(), errMsg)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

// classifyMiss distinguishes a missing row from a guard failure after a
// conditional mutation touched nothing.
func (s *PostgresStore) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return ErrConflict
}

func statusGuard(statuses []model.Status, firstArg int) (string, []any) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", firstArg+i)
		args[i] = string(st)
	}
	return strings.Join(placeholders, ", "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*model.Message, error) {
	var (
		m           model.Message
		msgType     string
		direction   string
		status      string
		subject     sql.NullString
		deliveredAt sql.NullTime
		errMsg      sql.NullString
		provider    sql.NullString
		providerID  sql.NullString
		errorKind   sql.NullString
	)

	if err := r.Scan(
		&m.ID,
		&m.ContactID,
		&msgType,
		&direction,
		&m.Recipient,
		&subject,
		&m.Body,
		&status,
		&m.Timestamp,
		&m.StatusUpdatedAt,
		&deliveredAt,
		&errMsg,
		&provider,
		&providerID,
		&errorKind,
	); err != nil {
		return nil, err
	}

	m.Type = model.Type(msgType)
	m.Direction = model.Direction(direction)
	m.Status = model.Status(status)

	if subject.Valid {
		s := subject.String
		m.Subject = &s
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	if errMsg.Valid {
		s := errMsg.String
		m.ErrorMessage = &s
	}

	meta := map[string]string{}
	if provider.Valid {
		meta[model.MetaProvider] = provider.String
	}
	if providerID.Valid {
		meta[model.MetaProviderMessageID] = providerID.String
	}
	if errorKind.Valid {
		meta[model.MetaErrorKind] = errorKind.String
	}
	if len(meta) > 0 {
		m.Metadata = meta
	}

	return &m, nil
}

func nullMeta(meta map[string]string, key string) *string {
	if meta == nil {
		return nil
	}
	v, ok := meta[key]
	if !ok {
		return nil
	}
	return &v
}
