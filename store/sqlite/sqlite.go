/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.MovementStore and ledger.Directory using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences (see store/postgres).

APPEND-ONLY ENFORCEMENT:
  Movements are insert-only. The only UPDATE statements touch the
  is_reversed flag (guarded, once) and the next_execution schedule of a
  recurring direct debit. There are no DELETE statements.

KEY TABLES:
  movements:  Immutable ledger of balance-affecting events (flat row per
              movement, payload columns nullable per type)
  clients:    Client records (guid, active)
  accounts:   Account balances and ownership
  cards:      Card metadata and spending ceilings

INDEXES:
  - idx_movements_cliente:       client listing (hot path)
  - idx_movements_card_window:   card-payment window sums (hot path)
  - idx_movements_due_debits:    due recurring direct debits

BALANCE MUTATION:
  Balances are decimal strings; MutateBalance runs a read-compute-write
  inside one database transaction, so the non-negative guard and the
  write are atomic.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time.

USAGE:
  st, err := sqlite.New("./data/bank.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  eng := ledger.NewEngine(st, st)

SEE ALSO:
  - ledger/store.go: MovementStore contract
  - ledger/directory.go: Directory contract
  - store/postgres/postgres.go: PostgreSQL MovementStore
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vivesbank/banking-engine/ledger"
)

// timeFormat is RFC3339 with fixed-width nanoseconds so stored timestamps
// compare lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.MovementStore and ledger.Directory over SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.MovementStore = (*Store)(nil)
	_ ledger.Directory     = (*Store)(nil)
)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// SQLite's single-writer lock errors under concurrent use.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Movements (insert-only ledger)
	CREATE TABLE IF NOT EXISTS movements (
		guid TEXT PRIMARY KEY,
		cliente_id TEXT NOT NULL,
		tipo TEXT NOT NULL,
		created_at TEXT NOT NULL,
		is_reversed INTEGER NOT NULL DEFAULT 0,
		card_ref TEXT,
		merchant TEXT,
		source_account TEXT,
		dest_account TEXT,
		counterparty TEXT,
		amount TEXT NOT NULL,
		concept TEXT,
		periodicity TEXT,
		next_execution TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_cliente
		ON movements(cliente_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_movements_created
		ON movements(created_at DESC);

	-- Card-payment window sums (hot path for limit checks)
	CREATE INDEX IF NOT EXISTS idx_movements_card_window
		ON movements(card_ref, created_at)
		WHERE tipo = 'PagoConTarjeta';

	-- Due recurring direct debits
	CREATE INDEX IF NOT EXISTS idx_movements_due_debits
		ON movements(next_execution)
		WHERE tipo = 'Domiciliacion' AND next_execution IS NOT NULL;

	-- Directory
	CREATE TABLE IF NOT EXISTS clients (
		guid TEXT PRIMARY KEY,
		name TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS accounts (
		ref TEXT PRIMARY KEY,
		client_guid TEXT NOT NULL REFERENCES clients(guid),
		balance TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_client ON accounts(client_guid);

	CREATE TABLE IF NOT EXISTS cards (
		ref TEXT PRIMARY KEY,
		account_ref TEXT NOT NULL REFERENCES accounts(ref),
		limit_daily TEXT NOT NULL DEFAULT '0',
		limit_weekly TEXT NOT NULL DEFAULT '0',
		limit_monthly TEXT NOT NULL DEFAULT '0'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MOVEMENT STORE
// =============================================================================

func (s *Store) Insert(ctx context.Context, mv *ledger.Movement) error {
	row := flatten(mv)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movements (guid, cliente_id, tipo, created_at, is_reversed,
			card_ref, merchant, source_account, dest_account, counterparty,
			amount, concept, periodicity, next_execution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.guid, row.clienteID, row.tipo, row.createdAt, row.isReversed,
		row.cardRef, row.merchant, row.sourceAccount, row.destAccount,
		row.counterparty, row.amount, row.concept, row.periodicity,
		row.nextExecution)
	if err != nil && isUniqueViolation(err) {
		return ledger.ErrDuplicateMovement
	}
	return err
}

const movementColumns = `guid, cliente_id, tipo, created_at, is_reversed,
	card_ref, merchant, source_account, dest_account, counterparty,
	amount, concept, periodicity, next_execution`

func (s *Store) GetByGUID(ctx context.Context, guid ledger.MovementGUID) (*ledger.Movement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE guid = ?`, string(guid))
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
		`SELECT COUNT(*) FROM movements WHERE cliente_id = ?`, string(client)).Scan(&total); err != nil {
		return ledger.Page{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE cliente_id = ?
		 ORDER BY created_at DESC, guid
		 LIMIT ? OFFSET ?`,
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
		 LIMIT ? OFFSET ?`,
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
		 WHERE tipo = ? AND card_ref = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at`,
		string(ledger.TypeCardPayment), string(card),
		since.UTC().Format(timeFormat), until.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (s *Store) MarkReversed(ctx context.Context, guid ledger.MovementGUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET is_reversed = 1 WHERE guid = ? AND is_reversed = 0`,
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
	// Distinguish missing from already-reversed.
	var reversed bool
	err = s.db.QueryRowContext(ctx,
		`SELECT is_reversed FROM movements WHERE guid = ?`, string(guid)).Scan(&reversed)
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
		 WHERE tipo = ? AND next_execution IS NOT NULL AND next_execution <= ?
		 ORDER BY next_execution`,
		string(ledger.TypeDirectDebit), now.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (s *Store) AdvanceDirectDebit(ctx context.Context, guid ledger.MovementGUID, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET next_execution = ? WHERE guid = ?`,
		next.UTC().Format(timeFormat), string(guid))
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
// DIRECTORY
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, ref ledger.AccountRef) (ledger.Account, error) {
	var (
		acc     ledger.Account
		balance string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ref, client_guid, balance, active FROM accounts WHERE ref = ?`,
		string(ref)).Scan(&acc.Ref, &acc.OwnerClientGUID, &balance, &acc.Active)
	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.NewAccountNotFound(ref)
	}
	if err != nil {
		return ledger.Account{}, err
	}
	acc.Balance, err = decimal.NewFromString(balance)
	return acc, err
}

func (s *Store) GetCard(ctx context.Context, ref ledger.CardRef) (ledger.Card, error) {
	var (
		card                   ledger.Card
		daily, weekly, monthly string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ref, account_ref, limit_daily, limit_weekly, limit_monthly
		 FROM cards WHERE ref = ?`,
		string(ref)).Scan(&card.Ref, &card.LinkedAccount, &daily, &weekly, &monthly)
	if err == sql.ErrNoRows {
		return ledger.Card{}, ledger.NewCardNotFound(ref)
	}
	if err != nil {
		return ledger.Card{}, err
	}
	if card.DailyCeiling, err = decimal.NewFromString(daily); err != nil {
		return ledger.Card{}, err
	}
	if card.WeeklyCeiling, err = decimal.NewFromString(weekly); err != nil {
		return ledger.Card{}, err
	}
	if card.MonthlyCeiling, err = decimal.NewFromString(monthly); err != nil {
		return ledger.Card{}, err
	}
	return card, nil
}

func (s *Store) GetClient(ctx context.Context, guid ledger.ClientGUID) (ledger.Client, error) {
	var client ledger.Client
	err := s.db.QueryRowContext(ctx,
		`SELECT guid, active FROM clients WHERE guid = ?`,
		string(guid)).Scan(&client.GUID, &client.Active)
	if err == sql.ErrNoRows {
		return ledger.Client{}, ledger.NewClientNotFound(guid)
	}
	return client, err
}

// MutateBalance applies delta inside one database transaction: read,
// guard, write. SQLite's single-writer model serializes concurrent
// mutations.
func (s *Store) MutateBalance(ctx context.Context, ref ledger.AccountRef, delta decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var balance string
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE ref = ?`, string(ref)).Scan(&balance)
	if err == sql.ErrNoRows {
		return ledger.NewAccountNotFound(ref)
	}
	if err != nil {
		return err
	}

	current, err := decimal.NewFromString(balance)
	if err != nil {
		return err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return &ledger.InsufficientFundsError{
			Account:   ref,
			Available: current,
			Requested: delta.Neg(),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE ref = ?`,
		next.String(), string(ref)); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// DIRECTORY SEEDING - Used by fixtures and the CRUD layer
// =============================================================================

func (s *Store) PutClient(ctx context.Context, client ledger.Client, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (guid, name, active) VALUES (?, ?, ?)
		 ON CONFLICT(guid) DO UPDATE SET name = excluded.name, active = excluded.active`,
		string(client.GUID), name, client.Active)
	return err
}

func (s *Store) PutAccount(ctx context.Context, acc ledger.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (ref, client_guid, balance, active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET client_guid = excluded.client_guid,
			balance = excluded.balance, active = excluded.active`,
		string(acc.Ref), string(acc.OwnerClientGUID), acc.Balance.String(), acc.Active)
	return err
}

func (s *Store) PutCard(ctx context.Context, card ledger.Card) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (ref, account_ref, limit_daily, limit_weekly, limit_monthly)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET account_ref = excluded.account_ref,
			limit_daily = excluded.limit_daily, limit_weekly = excluded.limit_weekly,
			limit_monthly = excluded.limit_monthly`,
		string(card.Ref), string(card.LinkedAccount), card.DailyCeiling.String(),
		card.WeeklyCeiling.String(), card.MonthlyCeiling.String())
	return err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type movementRow struct {
	guid          string
	clienteID     string
	tipo          string
	createdAt     string
	isReversed    bool
	cardRef       sql.NullString
	merchant      sql.NullString
	sourceAccount sql.NullString
	destAccount   sql.NullString
	counterparty  sql.NullString
	amount        string
	concept       sql.NullString
	periodicity   sql.NullString
	nextExecution sql.NullString
}

func flatten(mv *ledger.Movement) movementRow {
	row := movementRow{
		guid:       string(mv.GUID),
		clienteID:  string(mv.ClientGUID),
		tipo:       string(mv.Type),
		createdAt:  mv.CreatedAt.UTC().Format(timeFormat),
		isReversed: mv.IsReversed,
		amount:     mv.Amount().String(),
	}
	switch mv.Type {
	case ledger.TypeCardPayment:
		row.cardRef = nullStr(string(mv.CardPayment.Card))
		row.merchant = nullStr(mv.CardPayment.Merchant)
	case ledger.TypePayroll:
		row.destAccount = nullStr(string(mv.Payroll.Destination))
		row.counterparty = nullStr(mv.Payroll.PayerID)
	case ledger.TypeDirectDebit:
		dd := mv.DirectDebit
		row.sourceAccount = nullStr(string(dd.Source))
		row.counterparty = nullStr(dd.CreditorID)
		row.periodicity = nullStr(string(dd.Periodicity))
		if !dd.NextExecution.IsZero() {
			row.nextExecution = nullStr(dd.NextExecution.UTC().Format(timeFormat))
		}
	case ledger.TypeTransfer:
		tr := mv.Transfer
		row.sourceAccount = nullStr(string(tr.Source))
		row.destAccount = nullStr(string(tr.Destination))
		row.concept = nullStr(tr.Concept)
	}
	return row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(r rowScanner) (*ledger.Movement, error) {
	var row movementRow
	err := r.Scan(&row.guid, &row.clienteID, &row.tipo, &row.createdAt,
		&row.isReversed, &row.cardRef, &row.merchant, &row.sourceAccount,
		&row.destAccount, &row.counterparty, &row.amount, &row.concept,
		&row.periodicity, &row.nextExecution)
	if err != nil {
		return nil, err
	}
	return inflate(row)
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

func inflate(row movementRow) (*ledger.Movement, error) {
	createdAt, err := time.Parse(timeFormat, row.createdAt)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(row.amount)
	if err != nil {
		return nil, err
	}

	mv := &ledger.Movement{
		GUID:       ledger.MovementGUID(row.guid),
		ClientGUID: ledger.ClientGUID(row.clienteID),
		Type:       ledger.MovementType(row.tipo),
		CreatedAt:  createdAt,
		IsReversed: row.isReversed,
	}
	switch mv.Type {
	case ledger.TypeCardPayment:
		mv.CardPayment = &ledger.CardPayment{
			Card:     ledger.CardRef(row.cardRef.String),
			Merchant: row.merchant.String,
			Amount:   amount,
		}
	case ledger.TypePayroll:
		mv.Payroll = &ledger.Payroll{
			Destination: ledger.AccountRef(row.destAccount.String),
			PayerID:     row.counterparty.String,
			Amount:      amount,
		}
	case ledger.TypeDirectDebit:
		dd := &ledger.DirectDebit{
			Source:      ledger.AccountRef(row.sourceAccount.String),
			CreditorID:  row.counterparty.String,
			Amount:      amount,
			Periodicity: ledger.Periodicity(row.periodicity.String),
		}
		if row.nextExecution.Valid {
			dd.NextExecution, err = time.Parse(timeFormat, row.nextExecution.String)
			if err != nil {
				return nil, err
			}
		}
		mv.DirectDebit = dd
	case ledger.TypeTransfer:
		mv.Transfer = &ledger.Transfer{
			Source:      ledger.AccountRef(row.sourceAccount.String),
			Destination: ledger.AccountRef(row.destAccount.String),
			Amount:      amount,
			Concept:     row.concept.String,
		}
	}
	return mv, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
