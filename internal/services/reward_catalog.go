package services

import "ecocycle/internal/domain"

// rewardCatalog is the fixed set of redeemable rewards, cheapest first.
var rewardCatalog = []domain.Reward{
	{ID: "r-plant", Name: "Potted plant seedling", RequiredPoints: 300},
	{ID: "r-tote", Name: "Recycled tote bag", RequiredPoints: 500},
	{ID: "r-voucher-10k", Name: "Grocery voucher 10k", RequiredPoints: 1000},
	{ID: "r-ewallet-50k", Name: "E-wallet top-up 50k", RequiredPoints: 5000},
}

func Rewards() []domain.Reward {
	out := make([]domain.Reward, len(rewardCatalog))
	copy(out, rewardCatalog)
	return out
}

func findReward(id string) (domain.Reward, bool) {
	for _, r := range rewardCatalog {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Reward{}, false
}
