package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/metrics"
	"ecocycle/internal/repos"
)

// PointsService reads balances and spends points on rewards. The ledger in
// points_history is the source of truth; users.points is its projection and
// both always move in the same transaction.
type PointsService struct {
	Store  *repos.Store
	Events events.Publisher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewPointsService(store *repos.Store, pub events.Publisher, logger *zap.Logger) *PointsService {
	return &PointsService{Store: store, Events: pub, Log: logger}
}

func (s *PointsService) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := s.Store.Users.ByID(ctx, userID)
	if err != nil {
		return 0, lookup(err, "user", userID)
	}
	return u.Points, nil
}

func (s *PointsService) History(ctx context.Context, userID string, page, limit int) ([]domain.PointsEntry, domain.Page, error) {
	page, limit = normalizePage(page, limit)
	rows, total, err := s.Store.Points.History(ctx, userID, page, limit)
	if err != nil {
		return nil, domain.Page{}, fmt.Errorf("points history: %w", err)
	}
	return rows, domain.NewPage(page, limit, total), nil
}

func (s *PointsService) Rewards() []domain.Reward { return Rewards() }

type Redemption struct {
	Reward  domain.Reward `json:"reward"`
	Balance int64         `json:"balance"`
}

// Redeem spends the reward's cost. The guarded decrement refuses to go below
// zero, so two concurrent redemptions cannot overdraw the balance.
func (s *PointsService) Redeem(ctx context.Context, user *domain.User, rewardID string) (res Redemption, err error) {
	ctx, span := startSpan(ctx, "PointsService.Redeem", attribute.String("reward.id", rewardID))
	defer func() { endSpan(span, err) }()

	reward, ok := findReward(rewardID)
	if !ok {
		return res, domain.Errf(domain.KindNotFound, "reward %s not found", rewardID)
	}
	now := repos.FormatTime(clock(s.Now))
	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		ok, err := tx.Users.AddPoints(ctx, user.ID, -reward.RequiredPoints)
		if err != nil {
			return fmt.Errorf("debit points: %w", err)
		}
		u, err := tx.Users.ByID(ctx, user.ID)
		if err != nil {
			return lookup(err, "user", user.ID)
		}
		if !ok {
			return domain.Errf(domain.KindInsufficientPoints, "%s needs %d points, you have %d",
				reward.Name, reward.RequiredPoints, u.Points).
				With("required", reward.RequiredPoints).
				With("balance", u.Points)
		}
		desc := "Redeemed " + reward.Name
		if err := tx.Points.Append(ctx, &domain.PointsEntry{
			ID: newID(), UserID: user.ID, Points: -reward.RequiredPoints, Type: domain.PointsRedeemed,
			Description: desc, ReferenceID: reward.ID, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if err := tx.Points.Record(ctx, &domain.Transaction{
			ID: newID(), UserID: user.ID, Type: domain.TxRedemption, ReferenceID: reward.ID,
			Amount: decimal.Zero, PointsEarned: -reward.RequiredPoints, Description: desc, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		res = Redemption{Reward: reward, Balance: u.Points}
		return nil
	})
	if err != nil {
		return Redemption{}, err
	}

	metrics.PointsRedeemed.Add(float64(reward.RequiredPoints))
	publish(ctx, s.Events, s.Log, events.New(events.RewardRedeemed, user.ID, map[string]any{
		"reward_id": reward.ID,
		"points":    reward.RequiredPoints,
	}))
	return res, nil
}

// VerifyLedger reports whether the stored balance equals the ledger sum.
func (s *PointsService) VerifyLedger(ctx context.Context, userID string) (balance, ledger int64, err error) {
	u, err := s.Store.Users.ByID(ctx, userID)
	if err != nil {
		return 0, 0, lookup(err, "user", userID)
	}
	sum, err := s.Store.Points.Sum(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger sum: %w", err)
	}
	if sum != u.Points {
		return u.Points, sum, fmt.Errorf("points ledger diverged for %s: balance %d, ledger %d", userID, u.Points, sum)
	}
	return u.Points, sum, nil
}
