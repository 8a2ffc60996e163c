package rewards

import (
	"context"
	"errors"
	"fmt"
)

// EnsureBudgetRange provisions every day in [start, end] with dailyCap,
// leaving existing days untouched, and returns the whole range.
func (service *Service) EnsureBudgetRange(ctx context.Context, start Date, end Date, dailyCap Points) ([]BudgetSnapshot, error) {
	operationID := newOperationID()
	days, err := validateDateRange(start, end)
	if err == nil && dailyCap <= 0 {
		err = fmt.Errorf("%w: daily cap must be greater than zero", ErrInvalidAmount)
	}
	var snapshots []BudgetSnapshot
	if err == nil {
		err = service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
			for date := start; !date.After(end); date = date.AddDays(1) {
				if err := ensureBudget(ctx, transactionStore, date, dailyCap); err != nil {
					return err
				}
			}
			budgets, err := transactionStore.ListBudgets(ctx, start, end, 0, days)
			if err != nil {
				return err
			}
			snapshots = budgetSnapshots(budgets)
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationEnsureBudgets,
		Amount:      dailyCap,
		Error:       err,
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// QueryBudgets pages through the budgets of [start, end] ordered by date.
func (service *Service) QueryBudgets(ctx context.Context, start Date, end Date, page PageRequest) (Page[BudgetSnapshot], error) {
	if _, err := validateDateRange(start, end); err != nil {
		return Page[BudgetSnapshot]{}, err
	}
	if page.Size <= 0 {
		return Page[BudgetSnapshot]{}, fmt.Errorf("%w: page size must be positive", ErrInvalidPage)
	}
	total, err := service.store.CountBudgets(ctx, start, end)
	if err != nil {
		return Page[BudgetSnapshot]{}, err
	}
	budgets, err := service.store.ListBudgets(ctx, start, end, page.Offset(), page.Size)
	if err != nil {
		return Page[BudgetSnapshot]{}, err
	}
	return newPage(budgetSnapshots(budgets), page, total), nil
}

func ensureBudget(ctx context.Context, transactionStore Store, date Date, dailyCap Points) error {
	_, err := transactionStore.InsertBudgetIfAbsent(ctx, date, dailyCap)
	return err
}

// debitBudget takes amount out of the day's remaining capacity. A lost
// compare-and-set surfaces as ErrStaleVersion so the caller re-runs the
// transaction and re-checks the remaining amount.
func (service *Service) debitBudget(ctx context.Context, transactionStore Store, date Date, amount Points) (DailyBudget, error) {
	if amount <= 0 {
		return DailyBudget{}, fmt.Errorf("%w: debit must be greater than zero", ErrInvalidAmount)
	}
	if service.defaultDailyCap > 0 {
		if err := ensureBudget(ctx, transactionStore, date, service.defaultDailyCap); err != nil {
			return DailyBudget{}, err
		}
	}
	budget, err := transactionStore.GetBudget(ctx, date)
	if err != nil {
		return DailyBudget{}, err
	}
	if budget.RemainingAmount < amount {
		return DailyBudget{}, BudgetExhaustedError{Date: date, Requested: amount, Remaining: budget.RemainingAmount}
	}
	remaining := budget.RemainingAmount - amount
	if err := transactionStore.CompareAndSetBudgetRemaining(ctx, budget.ID, budget.Version, remaining); err != nil {
		return DailyBudget{}, err
	}
	budget.RemainingAmount = remaining
	budget.Version++
	return budget, nil
}

// creditBudget returns amount to the day's capacity. Credits only ever give
// back a previous debit, so exceeding the total means the row is corrupt.
func (service *Service) creditBudget(ctx context.Context, transactionStore Store, date Date, amount Points) (DailyBudget, error) {
	if amount <= 0 {
		return DailyBudget{}, fmt.Errorf("%w: credit must be greater than zero", ErrInvalidAmount)
	}
	budget, err := transactionStore.GetBudget(ctx, date)
	if err != nil {
		return DailyBudget{}, err
	}
	remaining := budget.RemainingAmount + amount
	if remaining > budget.TotalAmount {
		return DailyBudget{}, fmt.Errorf("%w: date %s remaining %d + %d exceeds total %d", ErrInvalidBudgetState, date, budget.RemainingAmount, amount, budget.TotalAmount)
	}
	if err := transactionStore.CompareAndSetBudgetRemaining(ctx, budget.ID, budget.Version, remaining); err != nil {
		return DailyBudget{}, err
	}
	budget.RemainingAmount = remaining
	budget.Version++
	return budget, nil
}

// remainingBudget reads the day's remaining capacity without provisioning it.
func (service *Service) remainingBudget(ctx context.Context, date Date) (Points, error) {
	budget, err := service.store.GetBudget(ctx, date)
	if errors.Is(err, ErrBudgetNotFound) {
		return service.defaultDailyCap, nil
	}
	if err != nil {
		return 0, err
	}
	return budget.RemainingAmount, nil
}

func validateDateRange(start Date, end Date) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange, start, end)
	}
	days := start.DaysUntil(end) + 1
	if days > maxBudgetRangeDays {
		return 0, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidDateRange, days, maxBudgetRangeDays)
	}
	return days, nil
}

func budgetSnapshots(budgets []DailyBudget) []BudgetSnapshot {
	snapshots := make([]BudgetSnapshot, 0, len(budgets))
	for _, budget := range budgets {
		snapshots = append(snapshots, BudgetSnapshot{
			Date:            budget.Date,
			TotalAmount:     budget.TotalAmount,
			RemainingAmount: budget.RemainingAmount,
			UsedAmount:      budget.TotalAmount - budget.RemainingAmount,
		})
	}
	return snapshots
}
