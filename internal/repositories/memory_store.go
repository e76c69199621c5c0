package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"promos/internal/models"
)

type txKey struct {
	userID    string
	timestamp int64
}

type walletKey struct {
	userID     string
	currencyID string
}

// MemoryStore is an in-process LedgerStore with the same conditional semantics as
// GormStore. It backs tests and local runs without postgres.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[walletKey]models.Wallet
	lots         map[models.LotKey]models.ExpirationLot
	transactions map[txKey]models.Transaction
	now          func() time.Time

	// BeforeWrite, when set, runs before every AtomicWrite and can inject failures.
	BeforeWrite func(writes []Write) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[walletKey]models.Wallet),
		lots:         make(map[models.LotKey]models.ExpirationLot),
		transactions: make(map[txKey]models.Transaction),
		now:          time.Now,
	}
}

func (s *MemoryStore) GetWallet(_ context.Context, userID, currencyID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletKey{userID, currencyID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *MemoryStore) GetLot(_ context.Context, key models.LotKey) (*models.ExpirationLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *MemoryStore) ListLots(_ context.Context, userID, currencyID string, activeOnly bool) ([]models.ExpirationLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ExpirationLot
	for k, l := range s.lots {
		if k.UserID != userID || k.CurrencyID != currencyID {
			continue
		}
		if activeOnly && l.AlreadyExpired {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidThru < out[j].ValidThru })
	return out, nil
}

func (s *MemoryStore) ListDueLots(_ context.Context, now int64, limit int) ([]models.ExpirationLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ExpirationLot
	for _, l := range s.lots {
		if l.IsDue(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidThru < out[j].ValidThru })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, userID string, timestamp int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[txKey{userID, timestamp}]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID, currencyID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for k, t := range s.transactions {
		if k.userID == userID && t.CurrencyID == currencyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionTimestamp < out[j].TransactionTimestamp })
	return out, nil
}

func (s *MemoryStore) AtomicWrite(_ context.Context, writes []Write) error {
	if s.BeforeWrite != nil {
		if err := s.BeforeWrite(writes); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make([]CancellationReason, len(writes))
	canceled := false
	for i, w := range writes {
		reasons[i] = s.check(w)
		if reasons[i] != ReasonNone {
			canceled = true
		}
	}
	if canceled {
		return &TransactionCanceledError{Reasons: reasons}
	}

	now := s.now()
	for _, w := range writes {
		s.apply(w, now)
	}
	return nil
}

func (s *MemoryStore) check(w Write) CancellationReason {
	switch w := w.(type) {
	case TransactionWrite:
		if _, ok := s.transactions[txKey{w.Transaction.UserID, w.Transaction.TransactionTimestamp}]; ok {
			return ReasonDuplicateKey
		}
	case WalletWrite:
		cur, ok := s.wallets[walletKey{w.UserID, w.CurrencyID}]
		if w.Insert {
			if ok {
				return ReasonConditionalCheckFailed
			}
			break
		}
		if !ok || cur.Amount != w.ExpectedAmount {
			return ReasonConditionalCheckFailed
		}
		if w.RequireNonNegative && cur.Amount+w.Delta < 0 {
			return ReasonInsufficientBalance
		}
	case LotWrite:
		cur, ok := s.lots[w.Lot.Key()]
		if w.Insert {
			if ok {
				return ReasonConditionalCheckFailed
			}
			break
		}
		if !ok || !lotConditionHolds(cur, w.ExpectedAmount, w.ExpectNotExpired) {
			return ReasonConditionalCheckFailed
		}
	case DeleteWrite:
		cur, ok := s.lots[w.Key]
		if !ok || !lotConditionHolds(cur, w.ExpectedAmount, w.ExpectNotExpired) {
			return ReasonConditionalCheckFailed
		}
	}
	return ReasonNone
}

func lotConditionHolds(cur models.ExpirationLot, expectedAmount *float64, expectNotExpired bool) bool {
	if expectNotExpired && cur.AlreadyExpired {
		return false
	}
	if expectedAmount != nil && cur.Amount != *expectedAmount {
		return false
	}
	return true
}

func (s *MemoryStore) apply(w Write, now time.Time) {
	switch w := w.(type) {
	case TransactionWrite:
		t := w.Transaction
		s.transactions[txKey{t.UserID, t.TransactionTimestamp}] = t
	case WalletWrite:
		key := walletKey{w.UserID, w.CurrencyID}
		cur, ok := s.wallets[key]
		if !ok {
			cur = models.Wallet{UserID: w.UserID, CurrencyID: w.CurrencyID, CreatedAt: now}
		}
		cur.Amount = w.ResultingAmount()
		cur.TotalAmountAccumulated += w.AccumulatedDelta
		cur.UsesExpirationLots = cur.UsesExpirationLots || w.UsesExpirationLots
		cur.UpdatedAt = now
		cur.Exists = true
		s.wallets[key] = cur
	case LotWrite:
		l := w.Lot
		if prev, ok := s.lots[l.Key()]; ok {
			l.CreatedAt = prev.CreatedAt
		} else {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
		s.lots[l.Key()] = l
	case DeleteWrite:
		delete(s.lots, w.Key)
	}
}
