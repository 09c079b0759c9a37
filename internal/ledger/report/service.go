package report

import (
	"context"
	"errors"

	"ledgercore/internal/ledger/store"
)

var ErrInvalidRequest = errors.New("report: invalid request")

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service { return &Service{store: s} }

// BalanceSheet computes the Σbalance(Dr) / Σbalance(Cr) totals for req.Currency.
func (s *Service) BalanceSheet(ctx context.Context, req BalanceSheetRequest) (BalanceSheet, error) {
	if req.Currency == "" {
		return BalanceSheet{}, ErrInvalidRequest
	}
	if s.store == nil {
		return BalanceSheet{}, errors.New("report: store not configured")
	}

	drTotal, crTotal, err := s.store.SumBalances(ctx, req.Currency)
	if err != nil {
		return BalanceSheet{}, err
	}

	return BalanceSheet{
		Currency: req.Currency,
		DrTotal:  drTotal.String(),
		CrTotal:  crTotal.String(),
		Drift:    drTotal.Sub(crTotal).String(),
	}, nil
}

// BalanceSheets computes one BalanceSheet per currency in currencies.
func (s *Service) BalanceSheets(ctx context.Context, currencies []string) ([]BalanceSheet, error) {
	out := make([]BalanceSheet, 0, len(currencies))
	for _, cur := range currencies {
		bs, err := s.BalanceSheet(ctx, BalanceSheetRequest{Currency: cur})
		if err != nil {
			return nil, err
		}
		out = append(out, bs)
	}
	return out, nil
}
