package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
)

// Memory is an in-process Store used for unit tests and local development.
// A single mutex is held for the whole of each WithTx scope, which
// serializes those scopes without needing a real database; methods called
// outside WithTx take no lock. It is not intended for production use.
type Memory struct {
	mu sync.Mutex

	accounts     map[string]*ledger.Account
	byAddress    map[string][]string
	transactions map[string]*ledger.Transaction
	groups       map[string]*ledger.TransactionGroup
	seenHashes   map[string]ledger.SeenHash
	strange      []ledger.StrangeBlockchainTransaction
	pendingSubs  []ledger.PendingBlockchainTransaction
	kv           map[string]ledger.KeyValue

	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     map[string]*ledger.Account{},
		byAddress:    map[string][]string{},
		transactions: map[string]*ledger.Transaction{},
		groups:       map[string]*ledger.TransactionGroup{},
		seenHashes:   map[string]ledger.SeenHash{},
		kv:           map[string]ledger.KeyValue{},
		clock:        time.Now,
	}
}

type memTxKey struct{}

// WithTx runs fn while holding the store-wide lock. A WithTx call made with
// the ctx handed to fn reuses the outer scope instead of locking again.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) == m {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, m))
}

func (m *Memory) CreateAccountPair(ctx context.Context, userID, currency, address, name string) (ledger.Account, ledger.Account, error) {
	for _, id := range m.byAddress[address] {
		if a := m.accounts[id]; a != nil && a.UserID != userID {
			return ledger.Account{}, ledger.Account{}, ledger.ErrConflict
		}
	}

	now := m.clock().UTC()
	dr := ledger.Account{
		ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address,
		Name: name, Kind: ledger.KindDr, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	cr := ledger.Account{
		ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address,
		Name: name, Kind: ledger.KindCr, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	m.accounts[dr.ID] = &dr
	m.accounts[cr.ID] = &cr
	m.byAddress[address] = append(m.byAddress[address], dr.ID, cr.ID)
	return dr, cr, nil
}

func (m *Memory) CreateAccount(ctx context.Context, userID, currency, address, name string, kind ledger.AccountKind) (ledger.Account, error) {
	now := m.clock().UTC()
	a := ledger.Account{
		ID: uuid.NewString(), UserID: userID, Currency: currency, Address: address,
		Name: name, Kind: kind, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	m.accounts[a.ID] = &a
	if address != "" {
		m.byAddress[address] = append(m.byAddress[address], a.ID)
	}
	return a, nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return *a, nil
}

func (m *Memory) ListAccountsByAddress(ctx context.Context, address string) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, id := range m.byAddress[address] {
		out = append(out, *m.accounts[id])
	}
	return out, nil
}

func (m *Memory) FindSystemAccount(ctx context.Context, currency, tag string) (ledger.Account, error) {
	for _, a := range m.accounts {
		if a.Currency == currency && a.Name == tag {
			return *a, nil
		}
	}
	return ledger.Account{}, ledger.ErrNotFound
}

// ListSystemDrAccounts returns every Dr account in the currency: custody is
// spread across one wallet per deposit address, and a withdrawal draws on
// whichever wallets currently hold funds (spec.md §4.3 case 3).
func (m *Memory) ListSystemDrAccounts(ctx context.Context, currency string) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range m.accounts {
		if a.Currency == currency && a.Kind == ledger.KindDr {
			out = append(out, *a)
		}
	}
	// Deterministic withdrawal selection order: descending balance, then
	// ascending account id, matching the Builder's tie-break rule.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Balance.Equal(out[j].Balance) {
			return out[i].Balance.GreaterThan(out[j].Balance)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) LockAccounts(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := map[string]decimal.Decimal{}
	for _, id := range sorted {
		a, ok := m.accounts[id]
		if !ok {
			return nil, ledger.ErrUnknownAccount
		}
		out[id] = m.balanceLocked(id)
		_ = a
	}
	return out, nil
}

func (m *Memory) balanceLocked(accountID string) decimal.Decimal {
	a := m.accounts[accountID]
	if a == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, tx := range m.transactions {
		if tx.Status == ledger.TxCancelled {
			continue
		}
		if tx.CrAccountID == accountID {
			total = total.Add(ledger.Contribution(a.Kind, false, tx.Value))
		}
		if tx.DrAccountID == accountID {
			total = total.Add(ledger.Contribution(a.Kind, true, tx.Value))
		}
	}
	return total
}

func (m *Memory) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if _, ok := m.accounts[accountID]; !ok {
		return decimal.Zero, ledger.ErrUnknownAccount
	}
	return m.balanceLocked(accountID), nil
}

func (m *Memory) RebuildBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	b, err := m.Balance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	a := m.accounts[accountID]
	a.Balance = b
	a.UpdatedAt = m.clock().UTC()
	return b, nil
}

func (m *Memory) InsertTransactions(ctx context.Context, group ledger.TransactionGroup, txs []ledger.Transaction) error {
	if len(txs) == 0 || len(txs) > 4 {
		return ledger.ErrInvalidArgument
	}
	if _, exists := m.groups[group.ID]; exists {
		return ledger.ErrConflict
	}

	// Project resulting balances across every touched account before
	// committing any of them, so the batch is rejected atomically (I2).
	projected := map[string]decimal.Decimal{}
	touch := func(id string) decimal.Decimal {
		if v, ok := projected[id]; ok {
			return v
		}
		v := m.balanceLocked(id)
		projected[id] = v
		return v
	}
	for _, tx := range txs {
		if tx.Status == ledger.TxCancelled {
			continue
		}
		dr, ok := m.accounts[tx.DrAccountID]
		if !ok {
			return ledger.ErrUnknownAccount
		}
		cr, ok := m.accounts[tx.CrAccountID]
		if !ok {
			return ledger.ErrUnknownAccount
		}
		projected[tx.DrAccountID] = touch(tx.DrAccountID).Add(ledger.Contribution(dr.Kind, true, tx.Value))
		projected[tx.CrAccountID] = touch(tx.CrAccountID).Add(ledger.Contribution(cr.Kind, false, tx.Value))
	}
	for id, bal := range projected {
		if bal.IsNegative() {
			_ = id
			return ledger.ErrInsufficientFunds
		}
	}

	now := m.clock().UTC()
	g := group
	g.CreatedAt, g.UpdatedAt = now, now
	g.TransactionIDs = nil
	for i := range txs {
		tx := txs[i]
		tx.GroupID = group.ID
		tx.CreatedAt, tx.UpdatedAt = now, now
		m.transactions[tx.ID] = &tx
		g.TransactionIDs = append(g.TransactionIDs, tx.ID)
	}
	m.groups[g.ID] = &g

	for id, bal := range projected {
		if a := m.accounts[id]; a != nil {
			a.Balance = bal
			a.UpdatedAt = now
		}
	}
	return nil
}

func (m *Memory) AppendTransaction(ctx context.Context, groupID string, tx ledger.Transaction) error {
	g, ok := m.groups[groupID]
	if !ok {
		return ledger.ErrNotFound
	}
	if len(g.TransactionIDs) >= 4 {
		return ledger.ErrInvalidArgument
	}
	drAcc, ok := m.accounts[tx.DrAccountID]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	crAcc, ok := m.accounts[tx.CrAccountID]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	drDelta := ledger.Contribution(drAcc.Kind, true, tx.Value)
	crDelta := ledger.Contribution(crAcc.Kind, false, tx.Value)
	if m.balanceLocked(drAcc.ID).Add(drDelta).IsNegative() {
		return ledger.ErrInsufficientFunds
	}
	if drAcc.ID != crAcc.ID && m.balanceLocked(crAcc.ID).Add(crDelta).IsNegative() {
		return ledger.ErrInsufficientFunds
	}

	now := m.clock().UTC()
	tx.GroupID = groupID
	tx.CreatedAt, tx.UpdatedAt = now, now
	m.transactions[tx.ID] = &tx
	g.TransactionIDs = append(g.TransactionIDs, tx.ID)
	g.UpdatedAt = now

	drAcc.Balance = drAcc.Balance.Add(drDelta)
	drAcc.UpdatedAt = now
	if drAcc.ID != crAcc.ID {
		crAcc.Balance = crAcc.Balance.Add(crDelta)
		crAcc.UpdatedAt = now
	}
	return nil
}

func (m *Memory) GetGroup(ctx context.Context, id string) (ledger.TransactionGroup, []ledger.Transaction, error) {
	g, ok := m.groups[id]
	if !ok {
		return ledger.TransactionGroup{}, nil, ledger.ErrNotFound
	}
	return *g, m.txsFor(*g), nil
}

func (m *Memory) txsFor(g ledger.TransactionGroup) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(g.TransactionIDs))
	for _, id := range g.TransactionIDs {
		if tx := m.transactions[id]; tx != nil {
			out = append(out, *tx)
		}
	}
	return out
}

func (m *Memory) FindGroupByIdempotencyKey(ctx context.Context, key string) (ledger.TransactionGroup, []ledger.Transaction, bool, error) {
	g, ok := m.groups[key]
	if !ok {
		return ledger.TransactionGroup{}, nil, false, nil
	}
	return *g, m.txsFor(*g), true, nil
}

func (m *Memory) UpdateGroupStatus(ctx context.Context, groupID string, status ledger.GroupStatus, blockchainTxHash string) error {
	g, ok := m.groups[groupID]
	if !ok {
		return ledger.ErrNotFound
	}
	if g.Status != ledger.GroupPending {
		return ledger.ErrIllegalTransition
	}
	if status != ledger.GroupDone && status != ledger.GroupCancelled {
		return ledger.ErrIllegalTransition
	}
	g.Status = status
	if blockchainTxHash != "" {
		g.BlockchainTxHash = blockchainTxHash
	}
	g.UpdatedAt = m.clock().UTC()

	terminal := ledger.TxDone
	if status == ledger.GroupCancelled {
		terminal = ledger.TxCancelled
	}
	for _, id := range g.TransactionIDs {
		tx := m.transactions[id]
		if tx != nil && tx.Status == ledger.TxPending {
			if terminal == ledger.TxCancelled {
				// Cancelling reverses the projected balance effect.
				if a := m.accounts[tx.DrAccountID]; a != nil {
					a.Balance = a.Balance.Sub(ledger.Contribution(a.Kind, true, tx.Value))
				}
				if a := m.accounts[tx.CrAccountID]; a != nil {
					a.Balance = a.Balance.Sub(ledger.Contribution(a.Kind, false, tx.Value))
				}
			}
			tx.Status = terminal
			tx.UpdatedAt = g.UpdatedAt
		}
	}
	return nil
}

func (m *Memory) BindBlockchainHash(ctx context.Context, groupID, hash string) error {
	g, ok := m.groups[groupID]
	if !ok {
		return ledger.ErrNotFound
	}
	if g.Status != ledger.GroupPending {
		return ledger.ErrIllegalTransition
	}
	g.BlockchainTxHash = hash
	g.UpdatedAt = m.clock().UTC()
	return nil
}

func (m *Memory) FindPendingByHash(ctx context.Context, hash string) ([]ledger.TransactionGroup, error) {
	var out []ledger.TransactionGroup
	for _, g := range m.groups {
		if g.BlockchainTxHash == hash && g.Status == ledger.GroupPending {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *Memory) RecordObserved(ctx context.Context, tx ledger.BlockchainTransaction) (bool, error) {
	if _, ok := m.seenHashes[tx.Hash]; ok {
		return true, nil
	}
	m.seenHashes[tx.Hash] = ledger.SeenHash{Hash: tx.Hash, BlockNumber: tx.BlockNumber, Currency: tx.Currency}
	return false, nil
}

func (m *Memory) InsertStrange(ctx context.Context, tx ledger.StrangeBlockchainTransaction) error {
	m.strange = append(m.strange, tx)
	return nil
}

func (m *Memory) Strange() []ledger.StrangeBlockchainTransaction {
	out := make([]ledger.StrangeBlockchainTransaction, len(m.strange))
	copy(out, m.strange)
	return out
}

func (m *Memory) InsertPendingSubmission(ctx context.Context, p ledger.PendingBlockchainTransaction) error {
	m.pendingSubs = append(m.pendingSubs, p)
	return nil
}

func (m *Memory) GetKV(ctx context.Context, key string) (ledger.KeyValue, bool, error) {
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *Memory) PutKV(ctx context.Context, key string, value []byte, now time.Time) error {
	m.kv[key] = ledger.KeyValue{Key: key, Value: value, UpdatedAt: now.UTC()}
	return nil
}

func (m *Memory) ListKVPrefix(ctx context.Context, prefix string) ([]ledger.KeyValue, error) {
	var out []ledger.KeyValue
	for k, v := range m.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) SumBalances(ctx context.Context, currency string) (decimal.Decimal, decimal.Decimal, error) {
	dr, cr := decimal.Zero, decimal.Zero
	for _, a := range m.accounts {
		if a.Currency != currency {
			continue
		}
		if a.Kind == ledger.KindDr {
			dr = dr.Add(a.Balance)
		} else {
			cr = cr.Add(a.Balance)
		}
	}
	return dr, cr, nil
}

func (m *Memory) ListAccountsBelowZero(ctx context.Context, currency string) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range m.accounts {
		if a.Currency != currency {
			continue
		}
		if a.Balance.IsNegative() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
