package accounting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists party-ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NewTxStore wraps a live transaction into the poster's TxStore.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO ledger_entries (company_id, party_kind, party_id, txn_id, txn_type, description, debit, credit, entry_date, ref_type, ref_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`,
		e.CompanyID, string(e.PartyKind), e.PartyID, e.TxnID, string(e.TxnType), e.Description, e.Debit, e.Credit, e.EntryDate, e.RefType, e.RefID).Scan(&id)
	return id, err
}

// ListEntries returns party-ledger rows for a tenant, oldest first.
func (r *Repository) ListEntries(ctx context.Context, companyID int64, filter LedgerFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, party_kind, party_id, txn_id, txn_type, description, debit, credit, entry_date, ref_type, ref_id, created_at
FROM ledger_entries
WHERE company_id=$1
  AND ($2::text = '' OR party_kind=$2)
  AND ($3::bigint = 0 OR party_id=$3)
  AND entry_date BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY entry_date ASC, id ASC
LIMIT $6`, companyID, string(filter.PartyKind), filter.PartyID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind, txnType string
		if err := rows.Scan(&e.ID, &e.CompanyID, &kind, &e.PartyID, &e.TxnID, &txnType, &e.Description, &e.Debit, &e.Credit, &e.EntryDate, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PartyKind = PartyKind(kind)
		e.TxnType = TxnType(txnType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PartyBalance sums debits minus credits for one party.
func (r *Repository) PartyBalance(ctx context.Context, companyID int64, kind PartyKind, partyID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit - credit), 0) FROM ledger_entries
WHERE company_id=$1 AND party_kind=$2 AND party_id=$3`, companyID, string(kind), partyID).Scan(&balance)
	return balance, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
