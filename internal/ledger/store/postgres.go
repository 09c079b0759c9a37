package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
	"ledgercore/pkg/utils"
)

// Postgres is the production Store. It assumes the schema described in
// SPEC_FULL.md §4.1/§6: accounts, transactions, tx_groups,
// blockchain_transactions, pending_blockchain_transactions,
// strange_blockchain_transactions, seen_hashes, key_values, every one
// carrying created_at/updated_at, plus a CHECK (balance >= 0) constraint on
// accounts and a UNIQUE constraint on seen_hashes(hash).
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, clock: time.Now}
}

type txKey struct{}

func (p *Postgres) querier(ctx context.Context) interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	ExecContext(context.Context, string, ...any) (sql.Result, error)
} {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return p.db
}

// WithTx opens a database transaction with at-least-read-committed
// isolation, as required by SPEC_FULL.md §4.1, and runs fn with it bound
// into the context every other Store method reads from.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx) // already inside a scope; reuse it.
	}
	return utils.WithTx(ctx, p.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (p *Postgres) CreateAccountPair(ctx context.Context, userID, currency, address, name string) (ledger.Account, ledger.Account, error) {
	q := p.querier(ctx)

	var boundUser string
	err := q.QueryRowContext(ctx, `SELECT user_id FROM accounts WHERE address = $1 LIMIT 1`, address).Scan(&boundUser)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.Account{}, err
	}
	if err == nil && boundUser != userID {
		return ledger.Account{}, ledger.Account{}, ledger.ErrConflict
	}

	now := p.clock().UTC()
	dr := ledger.Account{ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address, Name: name, Kind: ledger.KindDr, CreatedAt: now, UpdatedAt: now}
	cr := ledger.Account{ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address, Name: name, Kind: ledger.KindCr, CreatedAt: now, UpdatedAt: now}

	const ins = `
INSERT INTO accounts (id, user_id, currency, address, name, kind, balance, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,0,$7,$7)
`
	if _, err := q.ExecContext(ctx, ins, dr.ID, userID, currency, address, name, dr.Kind, now); err != nil {
		return ledger.Account{}, ledger.Account{}, err
	}
	if _, err := q.ExecContext(ctx, ins, cr.ID, userID, currency, address, name, cr.Kind, now); err != nil {
		return ledger.Account{}, ledger.Account{}, err
	}
	return dr, cr, nil
}

func (p *Postgres) CreateAccount(ctx context.Context, userID, currency, address, name string, kind ledger.AccountKind) (ledger.Account, error) {
	now := p.clock().UTC()
	a := ledger.Account{ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address, Name: name, Kind: kind, CreatedAt: now, UpdatedAt: now}
	const ins = `
INSERT INTO accounts (id, user_id, currency, address, name, kind, balance, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,0,$7,$7)
`
	_, err := p.querier(ctx).ExecContext(ctx, ins, a.ID, userID, currency, address, name, kind, now)
	return a, err
}

func (p *Postgres) scanAccount(row *sql.Row) (ledger.Account, error) {
	var a ledger.Account
	var balance string
	err := row.Scan(&a.ID, &a.UserID, &a.Currency, &a.Address, &a.Name, &a.Kind, &balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	return a, err
}

const selectAccount = `SELECT id, user_id, currency, address, name, kind, balance, created_at, updated_at FROM accounts WHERE id = $1`

func (p *Postgres) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return p.scanAccount(p.querier(ctx).QueryRowContext(ctx, selectAccount, id))
}

func (p *Postgres) ListAccountsByAddress(ctx context.Context, address string) ([]ledger.Account, error) {
	rows, err := p.querier(ctx).QueryContext(ctx, `SELECT id, user_id, currency, address, name, kind, balance, created_at, updated_at FROM accounts WHERE address = $1`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Currency, &a.Address, &a.Name, &a.Kind, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) FindSystemAccount(ctx context.Context, currency, tag string) (ledger.Account, error) {
	return p.scanAccount(p.querier(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, currency, address, name, kind, balance, created_at, updated_at FROM accounts WHERE currency = $1 AND name = $2 LIMIT 1`,
		currency, tag))
}

// ListSystemDrAccounts returns every Dr account in the currency: custody is
// spread across one wallet per deposit address, and a withdrawal draws on
// whichever wallets currently hold funds (spec.md §4.3 case 3).
func (p *Postgres) ListSystemDrAccounts(ctx context.Context, currency string) ([]ledger.Account, error) {
	rows, err := p.querier(ctx).QueryContext(ctx,
		`SELECT id, user_id, currency, address, name, kind, balance, created_at, updated_at
		 FROM accounts WHERE currency = $1 AND kind = $2
		 ORDER BY balance DESC, id ASC`,
		currency, ledger.KindDr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Currency, &a.Address, &a.Name, &a.Kind, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LockAccounts takes row locks on the given accounts in ascending id order
// (SPEC_FULL.md §5) and returns the balance each one had under that lock.
func (p *Postgres) LockAccounts(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	if !ok {
		return nil, errors.New("store: LockAccounts requires an active scope")
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := map[string]decimal.Decimal{}
	for _, id := range sorted {
		var balance string
		err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrUnknownAccount
		}
		if err != nil {
			return nil, err
		}
		b, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

// accountKind looks up an account's Dr/Cr kind, which the balance formula
// below needs: Dr accounts are debit-normal (mirror a blockchain wallet),
// Cr accounts are credit-normal (a claim against the custodian).
func (p *Postgres) accountKind(ctx context.Context, accountID string) (ledger.AccountKind, error) {
	var kind ledger.AccountKind
	err := p.querier(ctx).QueryRowContext(ctx, `SELECT kind FROM accounts WHERE id = $1`, accountID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrUnknownAccount
	}
	return kind, err
}

func (p *Postgres) computeBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	kind, err := p.accountKind(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	const q = `
SELECT
  COALESCE((SELECT SUM(value) FROM transactions WHERE dr_account_id = $1 AND status <> 'cancelled'), 0),
  COALESCE((SELECT SUM(value) FROM transactions WHERE cr_account_id = $1 AND status <> 'cancelled'), 0)
`
	var drS, crS string
	if err := p.querier(ctx).QueryRowContext(ctx, q, accountID).Scan(&drS, &crS); err != nil {
		return decimal.Zero, err
	}
	drSum, err := decimal.NewFromString(drS)
	if err != nil {
		return decimal.Zero, err
	}
	crSum, err := decimal.NewFromString(crS)
	if err != nil {
		return decimal.Zero, err
	}
	if kind == ledger.KindDr {
		return drSum.Sub(crSum), nil
	}
	return crSum.Sub(drSum), nil
}

func (p *Postgres) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return p.computeBalance(ctx, accountID)
}

// RebuildBalance recomputes the cached accounts.balance column from the
// transaction log, for the periodic rebuild SPEC_FULL.md §4.1 allows.
func (p *Postgres) RebuildBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	b, err := p.computeBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	_, err = p.querier(ctx).ExecContext(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, accountID, b.String())
	return b, err
}

func (p *Postgres) touchBalance(ctx context.Context, accountID string, delta decimal.Decimal, now time.Time) error {
	const q = `UPDATE accounts SET balance = balance + $2, updated_at = $3 WHERE id = $1`
	_, err := p.querier(ctx).ExecContext(ctx, q, accountID, delta.String(), now)
	return err
}

// InsertTransactions inserts the group and its leaf transactions, having
// already locked every touched account via LockAccounts in the same scope.
// The accounts.balance CHECK constraint is the last line of defense; this
// method also re-derives and re-checks balances explicitly so the caller
// gets ledger.ErrInsufficientFunds rather than a raw constraint violation.
func (p *Postgres) InsertTransactions(ctx context.Context, group ledger.TransactionGroup, txs []ledger.Transaction) error {
	if len(txs) == 0 || len(txs) > 4 {
		return ledger.ErrInvalidArgument
	}
	q := p.querier(ctx)
	now := p.clock().UTC()

	var exists string
	err := q.QueryRowContext(ctx, `SELECT id FROM tx_groups WHERE id = $1`, group.ID).Scan(&exists)
	if err == nil {
		return ledger.ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	touched := map[string]decimal.Decimal{}
	kinds := map[string]ledger.AccountKind{}
	ensure := func(id string) error {
		if _, ok := touched[id]; ok {
			return nil
		}
		b, err := p.computeBalance(ctx, id)
		if err != nil {
			return err
		}
		k, err := p.accountKind(ctx, id)
		if err != nil {
			return err
		}
		touched[id], kinds[id] = b, k
		return nil
	}
	for _, tx := range txs {
		if tx.Status == ledger.TxCancelled {
			continue
		}
		if err := ensure(tx.DrAccountID); err != nil {
			return err
		}
		if err := ensure(tx.CrAccountID); err != nil {
			return err
		}
		touched[tx.DrAccountID] = touched[tx.DrAccountID].Add(ledger.Contribution(kinds[tx.DrAccountID], true, tx.Value))
		touched[tx.CrAccountID] = touched[tx.CrAccountID].Add(ledger.Contribution(kinds[tx.CrAccountID], false, tx.Value))
	}
	for _, bal := range touched {
		if bal.IsNegative() {
			return ledger.ErrInsufficientFunds
		}
	}

	const insGroup = `
INSERT INTO tx_groups (id, kind, status, user_id, blockchain_tx_hash, created_at, updated_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$6)
`
	if _, err := q.ExecContext(ctx, insGroup, group.ID, group.Kind, group.Status, group.UserID, group.BlockchainTxHash, now); err != nil {
		return err
	}

	const insTx = `
INSERT INTO transactions (id, group_id, dr_account_id, cr_account_id, currency, value, status, hold_until, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
`
	for _, tx := range txs {
		if _, err := q.ExecContext(ctx, insTx, tx.ID, group.ID, tx.DrAccountID, tx.CrAccountID, tx.Currency, tx.Value.String(), tx.Status, tx.HoldUntil, now); err != nil {
			return err
		}
	}

	for id, bal := range touched {
		if _, err := q.ExecContext(ctx, `UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`, id, bal.String(), now); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) AppendTransaction(ctx context.Context, groupID string, tx ledger.Transaction) error {
	q := p.querier(ctx)
	now := p.clock().UTC()

	var status ledger.GroupStatus
	if err := q.QueryRowContext(ctx, `SELECT status FROM tx_groups WHERE id = $1`, groupID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrNotFound
		}
		return err
	}
	if status != ledger.GroupPending {
		return ledger.ErrIllegalTransition
	}

	drKind, err := p.accountKind(ctx, tx.DrAccountID)
	if err != nil {
		return err
	}
	crKind, err := p.accountKind(ctx, tx.CrAccountID)
	if err != nil {
		return err
	}
	drBal, err := p.computeBalance(ctx, tx.DrAccountID)
	if err != nil {
		return err
	}
	drDelta := ledger.Contribution(drKind, true, tx.Value)
	if drBal.Add(drDelta).IsNegative() {
		return ledger.ErrInsufficientFunds
	}
	if tx.DrAccountID != tx.CrAccountID {
		crBal, err := p.computeBalance(ctx, tx.CrAccountID)
		if err != nil {
			return err
		}
		if crBal.Add(ledger.Contribution(crKind, false, tx.Value)).IsNegative() {
			return ledger.ErrInsufficientFunds
		}
	}

	const insTx = `
INSERT INTO transactions (id, group_id, dr_account_id, cr_account_id, currency, value, status, hold_until, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
`
	if _, err := q.ExecContext(ctx, insTx, tx.ID, groupID, tx.DrAccountID, tx.CrAccountID, tx.Currency, tx.Value.String(), tx.Status, tx.HoldUntil, now); err != nil {
		return err
	}
	if err := p.touchBalance(ctx, tx.DrAccountID, drDelta, now); err != nil {
		return err
	}
	if err := p.touchBalance(ctx, tx.CrAccountID, ledger.Contribution(crKind, false, tx.Value), now); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE tx_groups SET updated_at = $2 WHERE id = $1`, groupID, now)
	return err
}

func (p *Postgres) loadTxs(ctx context.Context, groupID string) ([]ledger.Transaction, error) {
	rows, err := p.querier(ctx).QueryContext(ctx,
		`SELECT id, group_id, dr_account_id, cr_account_id, currency, value, status, hold_until, created_at, updated_at
		 FROM transactions WHERE group_id = $1 ORDER BY created_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var value string
		if err := rows.Scan(&tx.ID, &tx.GroupID, &tx.DrAccountID, &tx.CrAccountID, &tx.Currency, &value, &tx.Status, &tx.HoldUntil, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		if tx.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (p *Postgres) scanGroup(row *sql.Row) (ledger.TransactionGroup, error) {
	var g ledger.TransactionGroup
	var hash sql.NullString
	err := row.Scan(&g.ID, &g.Kind, &g.Status, &g.UserID, &hash, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TransactionGroup{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.TransactionGroup{}, err
	}
	g.BlockchainTxHash = hash.String
	return g, nil
}

const selectGroup = `SELECT id, kind, status, user_id, blockchain_tx_hash, created_at, updated_at FROM tx_groups WHERE id = $1`

func (p *Postgres) GetGroup(ctx context.Context, id string) (ledger.TransactionGroup, []ledger.Transaction, error) {
	g, err := p.scanGroup(p.querier(ctx).QueryRowContext(ctx, selectGroup, id))
	if err != nil {
		return ledger.TransactionGroup{}, nil, err
	}
	txs, err := p.loadTxs(ctx, id)
	if err != nil {
		return ledger.TransactionGroup{}, nil, err
	}
	for _, tx := range txs {
		g.TransactionIDs = append(g.TransactionIDs, tx.ID)
	}
	return g, txs, nil
}

// FindGroupByIdempotencyKey looks a group up by its id, which doubles as
// the client-supplied idempotency key per SPEC_FULL.md §4.3.
func (p *Postgres) FindGroupByIdempotencyKey(ctx context.Context, key string) (ledger.TransactionGroup, []ledger.Transaction, bool, error) {
	g, txs, err := p.GetGroup(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.TransactionGroup{}, nil, false, nil
	}
	if err != nil {
		return ledger.TransactionGroup{}, nil, false, err
	}
	return g, txs, true, nil
}

func (p *Postgres) UpdateGroupStatus(ctx context.Context, groupID string, status ledger.GroupStatus, blockchainTxHash string) error {
	q := p.querier(ctx)
	now := p.clock().UTC()

	var current ledger.GroupStatus
	if err := q.QueryRowContext(ctx, `SELECT status FROM tx_groups WHERE id = $1`, groupID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrNotFound
		}
		return err
	}
	if current != ledger.GroupPending || (status != ledger.GroupDone && status != ledger.GroupCancelled) {
		return ledger.ErrIllegalTransition
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE tx_groups SET status = $2, blockchain_tx_hash = COALESCE(NULLIF($3,''), blockchain_tx_hash), updated_at = $4 WHERE id = $1`,
		groupID, status, blockchainTxHash, now); err != nil {
		return err
	}

	terminal := ledger.TxDone
	if status == ledger.GroupCancelled {
		terminal = ledger.TxCancelled
	}

	txs, err := p.loadTxs(ctx, groupID)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if tx.Status != ledger.TxPending {
			continue
		}
		if terminal == ledger.TxCancelled {
			drKind, err := p.accountKind(ctx, tx.DrAccountID)
			if err != nil {
				return err
			}
			crKind, err := p.accountKind(ctx, tx.CrAccountID)
			if err != nil {
				return err
			}
			if err := p.touchBalance(ctx, tx.DrAccountID, ledger.Contribution(drKind, true, tx.Value).Neg(), now); err != nil {
				return err
			}
			if err := p.touchBalance(ctx, tx.CrAccountID, ledger.Contribution(crKind, false, tx.Value).Neg(), now); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx, `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`, tx.ID, terminal, now); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) BindBlockchainHash(ctx context.Context, groupID, hash string) error {
	q := p.querier(ctx)
	now := p.clock().UTC()
	res, err := q.ExecContext(ctx,
		`UPDATE tx_groups SET blockchain_tx_hash = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		groupID, hash, now, ledger.GroupPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrIllegalTransition
	}
	return nil
}

func (p *Postgres) FindPendingByHash(ctx context.Context, hash string) ([]ledger.TransactionGroup, error) {
	rows, err := p.querier(ctx).QueryContext(ctx,
		`SELECT id, kind, status, user_id, blockchain_tx_hash, created_at, updated_at
		 FROM tx_groups WHERE blockchain_tx_hash = $1 AND status = $2`, hash, ledger.GroupPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.TransactionGroup
	for rows.Next() {
		var g ledger.TransactionGroup
		var h sql.NullString
		if err := rows.Scan(&g.ID, &g.Kind, &g.Status, &g.UserID, &h, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.BlockchainTxHash = h.String
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecordObserved is idempotent by hash: if the hash is already in
// seen_hashes, it returns (true, nil) without mutating anything further.
func (p *Postgres) RecordObserved(ctx context.Context, btx ledger.BlockchainTransaction) (bool, error) {
	q := p.querier(ctx)
	var existing string
	err := q.QueryRowContext(ctx, `SELECT hash FROM seen_hashes WHERE hash = $1`, btx.Hash).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	now := p.clock().UTC()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO blockchain_transactions (hash, "from", "to", currency, value, fee, block_number, confirmations, observed_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9,$9)
		 ON CONFLICT (hash) DO UPDATE SET confirmations = EXCLUDED.confirmations, updated_at = EXCLUDED.updated_at`,
		btx.Hash, btx.From, btx.To, btx.Currency, btx.Value.String(), btx.Fee.String(), btx.BlockNumber, btx.Confirmations, now); err != nil {
		return false, err
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO seen_hashes (hash, block_number, currency, created_at) VALUES ($1,$2,$3,$4)`,
		btx.Hash, btx.BlockNumber, btx.Currency, now); err != nil {
		return false, err
	}
	return false, nil
}

func (p *Postgres) InsertStrange(ctx context.Context, s ledger.StrangeBlockchainTransaction) error {
	now := p.clock().UTC()
	_, err := p.querier(ctx).ExecContext(ctx,
		`INSERT INTO strange_blockchain_transactions (hash, "from", "to", currency, value, fee, block_number, confirmations, commentary, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`,
		s.Hash, s.From, s.To, s.Currency, s.Value.String(), s.Fee.String(), s.BlockNumber, s.Confirmations, s.Commentary, now)
	return err
}

func (p *Postgres) InsertPendingSubmission(ctx context.Context, pb ledger.PendingBlockchainTransaction) error {
	now := p.clock().UTC()
	_, err := p.querier(ctx).ExecContext(ctx,
		`INSERT INTO pending_blockchain_transactions (hash, "from", "to", currency, value, fee, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		pb.Hash, pb.From, pb.To, pb.Currency, pb.Value.String(), pb.Fee.String(), now)
	return err
}

func (p *Postgres) GetKV(ctx context.Context, key string) (ledger.KeyValue, bool, error) {
	var kv ledger.KeyValue
	err := p.querier(ctx).QueryRowContext(ctx, `SELECT key, value, updated_at FROM key_values WHERE key = $1`, key).
		Scan(&kv.Key, &kv.Value, &kv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.KeyValue{}, false, nil
	}
	if err != nil {
		return ledger.KeyValue{}, false, err
	}
	return kv, true, nil
}

func (p *Postgres) PutKV(ctx context.Context, key string, value []byte, now time.Time) error {
	_, err := p.querier(ctx).ExecContext(ctx,
		`INSERT INTO key_values (key, value, created_at, updated_at) VALUES ($1,$2,$3,$3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, now.UTC())
	return err
}

func (p *Postgres) ListKVPrefix(ctx context.Context, prefix string) ([]ledger.KeyValue, error) {
	rows, err := p.querier(ctx).QueryContext(ctx, `SELECT key, value, updated_at FROM key_values WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.KeyValue
	for rows.Next() {
		var kv ledger.KeyValue
		if err := rows.Scan(&kv.Key, &kv.Value, &kv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func (p *Postgres) SumBalances(ctx context.Context, currency string) (decimal.Decimal, decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(balance), 0) FROM accounts WHERE currency = $1 AND kind = $2`
	var drS, crS string
	if err := p.querier(ctx).QueryRowContext(ctx, q, currency, ledger.KindDr).Scan(&drS); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := p.querier(ctx).QueryRowContext(ctx, q, currency, ledger.KindCr).Scan(&crS); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	dr, err := decimal.NewFromString(drS)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	cr, err := decimal.NewFromString(crS)
	return dr, cr, err
}

func (p *Postgres) ListAccountsBelowZero(ctx context.Context, currency string) ([]ledger.Account, error) {
	rows, err := p.querier(ctx).QueryContext(ctx,
		`SELECT id, user_id, currency, address, name, kind, balance, created_at, updated_at
		 FROM accounts WHERE currency = $1 AND balance < 0
		 ORDER BY id ASC`,
		currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Currency, &a.Address, &a.Name, &a.Kind, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
