// Package numbering issues per-tenant document numbers. A sequence row per
// (company, document type, year) is locked with SELECT ... FOR UPDATE, so two
// concurrent documents never share a number. Numbers burned by rolled-back
// documents leave gaps; only per-tenant uniqueness is guaranteed.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// DocType selects the sequence and prefix for a document number.
type DocType string

const (
	DocPurchase       DocType = "PURCHASE"
	DocPurchaseReturn DocType = "PURCHASE_RETURN"
	DocSale           DocType = "SALE"
	DocSaleReturn     DocType = "SALE_RETURN"
)

var prefixes = map[DocType]string{
	DocPurchase:       "PINV",
	DocPurchaseReturn: "PRN",
	DocSale:           "INV",
	DocSaleReturn:     "SRN",
}

// ErrUnknownDocType indicates a document type without a registered prefix.
var ErrUnknownDocType = errors.New("numbering: unknown document type")

// Generator issues document numbers in the form PREFIX-YEAR-00001.
type Generator struct {
	pool *pgxpool.Pool
}

// NewGenerator constructs Generator.
func NewGenerator(pool *pgxpool.Pool) *Generator {
	return &Generator{pool: pool}
}

// Next returns the next number for the tenant and document type. It runs its
// own short transaction: the sequence advances even if the caller's document
// later rolls back.
func (g *Generator) Next(ctx context.Context, companyID int64, docType DocType) (string, error) {
	prefix, ok := prefixes[docType]
	if !ok {
		return "", ErrUnknownDocType
	}
	year := time.Now().UTC().Year()

	var number string
	err := db.WithTx(ctx, g.pool, func(tx pgx.Tx) error {
		var next int64
		err := tx.QueryRow(ctx, `SELECT next_number FROM document_sequences
WHERE company_id=$1 AND doc_type=$2 AND seq_year=$3 FOR UPDATE`, companyID, string(docType), year).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			next = 1
			if _, err := tx.Exec(ctx, `INSERT INTO document_sequences (company_id, doc_type, seq_year, next_number)
VALUES ($1,$2,$3,2)`, companyID, string(docType), year); err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			if _, err := tx.Exec(ctx, `UPDATE document_sequences SET next_number=next_number+1
WHERE company_id=$1 AND doc_type=$2 AND seq_year=$3`, companyID, string(docType), year); err != nil {
				return err
			}
		}
		number = Format(prefix, year, next)
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// Format renders a document number.
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}
