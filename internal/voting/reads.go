package voting

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
)

// Reputation returns the user's materialized total.
func (e *Engine) Reputation(ctx context.Context, userID string) (int, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return 0, err
	}
	return u.reputation.Total(ctx, userID)
}

// Privileges evaluates the user's total against every threshold.
func (e *Engine) Privileges(ctx context.Context, userID string) (map[reputation.Privilege]bool, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return nil, err
	}
	return u.reputation.Privileges(ctx, userID)
}

// History lists the user's reputation entries, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]reputation.Entry, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return nil, err
	}
	return u.reputation.History(ctx, userID)
}

// HistoryBetween lists the entries of the UTC days from fromDay through toDay.
func (e *Engine) HistoryBetween(ctx context.Context, userID string, fromDay, toDay time.Time) ([]reputation.Entry, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return nil, err
	}
	return u.reputation.HistoryBetween(ctx, userID, fromDay, toDay)
}

// DailyStatus reports today's gains against the cap.
func (e *Engine) DailyStatus(ctx context.Context, userID string) (reputation.DailyStatus, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return reputation.DailyStatus{}, err
	}
	return u.reputation.DailyStatus(ctx, userID)
}
