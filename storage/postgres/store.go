package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PaulFidika/tpayhook/notification"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store persists verified notifications in the payments schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "payments"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) table() string { return s.schema + ".notifications" }

// Record is a stored notification.
type Record struct {
	ID          uuid.UUID
	Fingerprint string
	MerchantID  string
	TransID     string
	Status      string
	Error       string
	CRC         string
	Amount      decimal.Decimal
	Paid        decimal.Decimal
	Email       string
	TestMode    bool
	Body        []byte
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// Notification rebuilds the decoded notification fields of rec.
func (rec *Record) Notification() *notification.Notification {
	return &notification.Notification{
		MerchantID: rec.MerchantID,
		TransID:    rec.TransID,
		CRC:        rec.CRC,
		Amount:     rec.Amount,
		Paid:       rec.Paid,
		Status:     rec.Status,
		Error:      rec.Error,
		Email:      rec.Email,
		TestMode:   rec.TestMode,
	}
}

// Save inserts n unless a notification with the same fingerprint exists.
// It returns the record id and whether a new row was written.
func (s *Store) Save(ctx context.Context, n *notification.Notification, body []byte) (uuid.UUID, bool, error) {
	if s.pg == nil {
		return uuid.Nil, false, errors.New("pgstore: no database")
	}
	var (
		id       uuid.UUID
		inserted bool
	)
	err := s.pg.QueryRow(ctx, `
		INSERT INTO `+s.table()+` (id, fingerprint, merchant_id, tr_id, tr_status, tr_error, tr_crc, amount, paid, email, test_mode, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12)
		ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
		RETURNING id, (xmax = 0)`,
		uuid.New(), n.Fingerprint(), n.MerchantID, n.TransID, n.Status, n.Error, n.CRC,
		n.Amount.String(), n.Paid.String(), n.Email, n.TestMode, body,
	).Scan(&id, &inserted)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, inserted, nil
}

// Get loads a record by id. A missing record yields (nil, nil).
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	if s.pg == nil || id == uuid.Nil {
		return nil, nil
	}
	var (
		r            Record
		amount, paid string
	)
	err := s.pg.QueryRow(ctx, `
		SELECT id, fingerprint, merchant_id, tr_id, tr_status, tr_error, tr_crc, amount::text, paid::text,
		       email, test_mode, body, received_at, processed_at
		FROM `+s.table()+` WHERE id = $1`, id,
	).Scan(&r.ID, &r.Fingerprint, &r.MerchantID, &r.TransID, &r.Status, &r.Error, &r.CRC, &amount, &paid,
		&r.Email, &r.TestMode, &r.Body, &r.ReceivedAt, &r.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if r.Paid, err = decimal.NewFromString(paid); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkProcessed stamps processed_at on the record if it is not already set.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if s.pg == nil || id == uuid.Nil {
		return nil
	}
	_, err := s.pg.Exec(ctx, `UPDATE `+s.table()+` SET processed_at = now() WHERE id = $1 AND processed_at IS NULL`, id)
	return err
}

// DeleteReceivedBefore removes records received before cutoff and returns how many were deleted.
func (s *Store) DeleteReceivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.pg == nil {
		return 0, nil
	}
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table()+` WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
