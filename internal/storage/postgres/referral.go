package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar-api/internal/domain/referral"
)

const (
	createLinkSQL = `INSERT INTO referral_links (id, vendor_id, product_id, code, discount_percent, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	findLinkByCodeSQL = `SELECT id, vendor_id, product_id, code, discount_percent, expires_at, active, created_at
		FROM referral_links WHERE code = $1`

	listCodesSQL = `SELECT code FROM referral_links`

	appendEventSQL = `INSERT INTO referral_events (id, referral_link_id, event_type, customer_id, order_id, meta)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`

	statsByVendorSQL = `SELECT
		l.id, l.vendor_id, l.product_id, l.code, l.discount_percent, l.expires_at, l.active, l.created_at,
		count(e.id) FILTER (WHERE e.event_type = 'click'),
		count(e.id) FILTER (WHERE e.event_type = 'view'),
		count(e.id) FILTER (WHERE e.event_type = 'purchase')
		FROM referral_links l
		LEFT JOIN referral_events e ON e.referral_link_id = l.id
			AND ($2::timestamptz IS NULL OR e.created_at >= $2)
			AND ($3::timestamptz IS NULL OR e.created_at <= $3)
		WHERE l.vendor_id = $1
		GROUP BY l.id
		ORDER BY l.created_at DESC`
)

var _ referral.Repository = (*ReferralRepository)(nil)

// ReferralRepository implements referral.Repository backed by PostgreSQL.
// Events are append-only: there is no update or delete path.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository returns a ReferralRepository that uses the given pool.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// CreateLink persists a new referral link. A unique violation on the code
// surfaces as referral.ErrCodeTaken so the tracker can retry.
func (r *ReferralRepository) CreateLink(ctx context.Context, l *referral.Link) error {
	err := r.pool.QueryRow(ctx, createLinkSQL,
		l.ID, l.VendorID, l.ProductID, l.Code, l.DiscountPercent, l.ExpiresAt, l.Active,
	).Scan(&l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return referral.ErrCodeTaken
		}
		return fmt.Errorf("creating referral link %q: %w", l.Code, err)
	}
	return nil
}

// FindByCode looks up a link by its code.
func (r *ReferralRepository) FindByCode(ctx context.Context, code string) (*referral.Link, error) {
	rows, err := r.pool.Query(ctx, findLinkByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding referral link %q: %w", code, err)
	}

	l, err := pgx.CollectExactlyOneRow(rows, scanLink)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, referral.ErrLinkNotFound
		}
		return nil, fmt.Errorf("finding referral link %q: %w", code, err)
	}
	return &l, nil
}

// ListCodes returns every issued referral code.
func (r *ReferralRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing referral codes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}

// AppendEvent writes one ledger entry. Meta is serialized to JSONB.
func (r *ReferralRepository) AppendEvent(ctx context.Context, e *referral.Event) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshaling event meta: %w", err)
	}

	_, err = r.pool.Exec(ctx, appendEventSQL,
		uuid.New().String(), e.LinkID, string(e.Type), e.CustomerID, e.OrderID, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("appending %s event for link %q: %w", e.Type, e.LinkID, err)
	}
	return nil
}

// StatsByVendor aggregates event counts per link for one vendor. Zero from/to
// values disable the corresponding bound.
func (r *ReferralRepository) StatsByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]referral.LinkStats, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	rows, err := r.pool.Query(ctx, statsByVendorSQL, vendorID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("referral stats for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (referral.LinkStats, error) {
		var s referral.LinkStats
		err := row.Scan(
			&s.Link.ID, &s.Link.VendorID, &s.Link.ProductID, &s.Link.Code,
			&s.Link.DiscountPercent, &s.Link.ExpiresAt, &s.Link.Active, &s.Link.CreatedAt,
			&s.Clicks, &s.Views, &s.Purchases,
		)
		return s, err
	})
}

func scanLink(row pgx.CollectableRow) (referral.Link, error) {
	var l referral.Link
	err := row.Scan(
		&l.ID, &l.VendorID, &l.ProductID, &l.Code,
		&l.DiscountPercent, &l.ExpiresAt, &l.Active, &l.CreatedAt,
	)
	return l, err
}
