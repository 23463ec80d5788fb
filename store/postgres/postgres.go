/*
Package postgres provides a PostgreSQL-backed ledger.MovementStore.

PURPOSE:
  Production storage variant of the movement ledger. Mirrors the SQLite
  schema with native types (TIMESTAMPTZ, NUMERIC, BOOLEAN) and $n
  placeholders; the semantics are identical.

  The directory tables usually live in the bank's own relational schema,
  so this package only implements movement persistence; pair it with
  whatever ledger.Directory the deployment provides.

USAGE:
  db, err := sql.Open("postgres", cfg.DatabaseURL)
  st, err := postgres.New(db)

SEE ALSO:
  - ledger/store.go: MovementStore contract
  - store/sqlite/sqlite.go: Embedded/dev variant
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vivesbank/banking-engine/ledger"
)

// Store implements ledger.MovementStore over PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ ledger.MovementStore = (*Store)(nil)

// New wraps an open connection pool and migrates the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS movements (
		guid TEXT PRIMARY KEY,
		cliente_id TEXT NOT NULL,
		tipo TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		is_reversed BOOLEAN NOT NULL DEFAULT FALSE,
		card_ref TEXT,
		merchant TEXT,
		source_account TEXT,
		dest_account TEXT,
		counterparty TEXT,
		amount NUMERIC NOT NULL,
		concept TEXT,
		periodicity TEXT,
		next_execution TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_movements_cliente
		ON movements(cliente_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_movements_card_window
		ON movements(card_ref, created_at)
		WHERE tipo = 'PagoConTarjeta';
	CREATE INDEX IF NOT EXISTS idx_movements_due_debits
		ON movements(next_execution)
		WHERE tipo = 'Domiciliacion' AND next_execution IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MOVEMENT STORE
// =============================================================================

func (s *Store) Insert(ctx context.Context, mv *ledger.Movement) error {
	var (
		cardRef, merchant, srcAcc, dstAcc, counterparty, concept, periodicity sql.NullString
		nextExecution                                                         sql.NullTime
	)
	switch mv.Type {
	case ledger.TypeCardPayment:
		cardRef = nullStr(string(mv.CardPayment.Card))
		merchant = nullStr(mv.CardPayment.Merchant)
	case ledger.TypePayroll:
		dstAcc = nullStr(string(mv.Payroll.Destination))
		counterparty = nullStr(mv.Payroll.PayerID)
	case ledger.TypeDirectDebit:
		dd := mv.DirectDebit
		srcAcc = nullStr(string(dd.Source))
		counterparty = nullStr(dd.CreditorID)
		periodicity = nullStr(string(dd.Periodicity))
		if !dd.NextExecution.IsZero() {
			nextExecution = sql.NullTime{Time: dd.NextExecution, Valid: true}
		}
	case ledger.TypeTransfer:
		tr := mv.Transfer
		srcAcc = nullStr(string(tr.Source))
		dstAcc = nullStr(string(tr.Destination))
		concept = nullStr(tr.Concept)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movements (guid, cliente_id, tipo, created_at, is_reversed,
			card_ref, merchant, source_account, dest_account, counterparty,
			amount, concept, periodicity, next_execution)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		string(mv.GUID), string(mv.ClientGUID), string(mv.Type), mv.CreatedAt,
		mv.IsReversed, cardRef, merchant, srcAcc, dstAcc, counterparty,
		mv.Amount(), concept, periodicity, nextExecution)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ledger.ErrDuplicateMovement
	}
	return err
}

const movementColumns = `guid, cliente_id, tipo, created_at, is_reversed,
	card_ref, merchant, source_account, dest_account, counterparty,
	amount, concept, periodicity, next_execution`

func (s *Store) GetByGUID(ctx context.Context, guid ledger.MovementGUID) (*ledger.Movement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE guid = $1`, string(guid))
	mv, err := scanMovement(row)
	if err == sql.ErrNoRows {
		return nil, ledger.NewMovementNotFound(guid)
	}
	return mv, err
}

func (s *Store) GetByClient(ctx context.Context, client ledger.ClientGUID, page ledger.PageRequest) (ledger.Page, error) {
	page = page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements WHERE cliente_id = $1`, string(client)).Scan(&total); err != nil {
		return ledger.Page{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE cliente_id = $1
		 ORDER BY created_at DESC, guid
		 LIMIT $2 OFFSET $3`,
		string(client), page.Size, page.Offset())
	if err != nil {
		return ledger.Page{}, err
	}
	defer rows.Close()

	content, err := scanMovements(rows)
	if err != nil {
		return ledger.Page{}, err
	}
	return ledger.Page{Content: content, Page: page.Page, Size: page.Size, TotalItems: total}, nil
}

func (s *Store) List(ctx context.Context, page ledger.PageRequest) (ledger.Page, error) {
	page = page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements`).Scan(&total); err != nil {
		return ledger.Page{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 ORDER BY created_at DESC, guid
		 LIMIT $1 OFFSET $2`,
		page.Size, page.Offset())
	if err != nil {
		return ledger.Page{}, err
	}
	defer rows.Close()

	content, err := scanMovements(rows)
	if err != nil {
		return ledger.Page{}, err
	}
	return ledger.Page{Content: content, Page: page.Page, Size: page.Size, TotalItems: total}, nil
}

func (s *Store) CardPaymentsSince(ctx context.Context, card ledger.CardRef, since, until time.Time) ([]*ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE tipo = $1 AND card_ref = $2 AND created_at BETWEEN $3 AND $4
		 ORDER BY created_at`,
		string(ledger.TypeCardPayment), string(card), since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (s *Store) MarkReversed(ctx context.Context, guid ledger.MovementGUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET is_reversed = TRUE WHERE guid = $1 AND is_reversed = FALSE`,
		string(guid))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var reversed bool
	err = s.db.QueryRowContext(ctx,
		`SELECT is_reversed FROM movements WHERE guid = $1`, string(guid)).Scan(&reversed)
	if err == sql.ErrNoRows {
		return ledger.NewMovementNotFound(guid)
	}
	if err != nil {
		return err
	}
	return ledger.ErrAlreadyReversed
}

func (s *Store) DueDirectDebits(ctx context.Context, now time.Time) ([]*ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE tipo = $1 AND next_execution IS NOT NULL AND next_execution <= $2
		 ORDER BY next_execution`,
		string(ledger.TypeDirectDebit), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (s *Store) AdvanceDirectDebit(ctx context.Context, guid ledger.MovementGUID, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET next_execution = $1 WHERE guid = $2`,
		next, string(guid))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.NewMovementNotFound(guid)
	}
	return nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(r rowScanner) (*ledger.Movement, error) {
	var (
		mv                                                                    ledger.Movement
		guid, clienteID, tipo                                                 string
		cardRef, merchant, srcAcc, dstAcc, counterparty, concept, periodicity sql.NullString
		amount                                                                decimal.Decimal
		nextExecution                                                         sql.NullTime
	)
	err := r.Scan(&guid, &clienteID, &tipo, &mv.CreatedAt, &mv.IsReversed,
		&cardRef, &merchant, &srcAcc, &dstAcc, &counterparty,
		&amount, &concept, &periodicity, &nextExecution)
	if err != nil {
		return nil, err
	}

	mv.GUID = ledger.MovementGUID(guid)
	mv.ClientGUID = ledger.ClientGUID(clienteID)
	mv.Type = ledger.MovementType(tipo)

	switch mv.Type {
	case ledger.TypeCardPayment:
		mv.CardPayment = &ledger.CardPayment{
			Card:     ledger.CardRef(cardRef.String),
			Merchant: merchant.String,
			Amount:   amount,
		}
	case ledger.TypePayroll:
		mv.Payroll = &ledger.Payroll{
			Destination: ledger.AccountRef(dstAcc.String),
			PayerID:     counterparty.String,
			Amount:      amount,
		}
	case ledger.TypeDirectDebit:
		mv.DirectDebit = &ledger.DirectDebit{
			Source:        ledger.AccountRef(srcAcc.String),
			CreditorID:    counterparty.String,
			Amount:        amount,
			Periodicity:   ledger.Periodicity(periodicity.String),
			NextExecution: nextExecution.Time,
		}
	case ledger.TypeTransfer:
		mv.Transfer = &ledger.Transfer{
			Source:      ledger.AccountRef(srcAcc.String),
			Destination: ledger.AccountRef(dstAcc.String),
			Amount:      amount,
			Concept:     concept.String,
		}
	}
	return &mv, nil
}

func scanMovements(rows *sql.Rows) ([]*ledger.Movement, error) {
	var result []*ledger.Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, mv)
	}
	return result, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
