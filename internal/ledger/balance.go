package ledger

import (
	"sort"

	"github.com/dukerupert/cabinshare/internal/model"
)

// Balances apportions shared expenses (receipts) across family groups by
// shares. Each group's owed amount is its share of the total, rounded with
// the largest-remainder method so the owed amounts sum to the total exactly.
// Receipts without a paying family group are ignored.
func Balances(groups []model.FamilyGroup, receipts []model.Receipt) []model.Balance {
	out := make([]model.Balance, len(groups))
	index := make(map[int64]int, len(groups))
	totalShares := 0
	for i, g := range groups {
		shares := g.Shares
		if shares < 1 {
			shares = 1
		}
		out[i] = model.Balance{FamilyGroupID: g.ID, FamilyGroupName: g.Name, Shares: shares}
		index[g.ID] = i
		totalShares += shares
	}
	if len(groups) == 0 {
		return out
	}

	var total int64
	for _, r := range receipts {
		if r.FamilyGroupID == nil {
			continue
		}
		i, ok := index[*r.FamilyGroupID]
		if !ok {
			continue
		}
		out[i].PaidCents += r.AmountCents
		total += r.AmountCents
	}

	type remainder struct {
		idx int
		rem int64
	}
	rems := make([]remainder, len(out))
	var assigned int64
	for i := range out {
		num := total * int64(out[i].Shares)
		out[i].OwedCents = num / int64(totalShares)
		rems[i] = remainder{i, num % int64(totalShares)}
		assigned += out[i].OwedCents
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].rem > rems[b].rem })
	for k := 0; assigned < total; k++ {
		out[rems[k%len(rems)].idx].OwedCents++
		assigned++
	}

	for i := range out {
		out[i].NetCents = out[i].PaidCents - out[i].OwedCents
	}
	return out
}

// Settle returns a short list of transfers that zeroes every net balance.
// Debtors and creditors are matched greedily, largest amounts first.
func Settle(balances []model.Balance) []model.Transfer {
	type party struct {
		id     int64
		amount int64
	}
	var debtors, creditors []party
	for _, b := range balances {
		switch {
		case b.NetCents < 0:
			debtors = append(debtors, party{b.FamilyGroupID, -b.NetCents})
		case b.NetCents > 0:
			creditors = append(creditors, party{b.FamilyGroupID, b.NetCents})
		}
	}
	byAmount := func(ps []party) func(i, j int) bool {
		return func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].id < ps[j].id
		}
	}
	sort.Slice(debtors, byAmount(debtors))
	sort.Slice(creditors, byAmount(creditors))

	var transfers []model.Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := min(debtors[i].amount, creditors[j].amount)
		if amount > 0 {
			transfers = append(transfers, model.Transfer{
				FromFamilyGroupID: debtors[i].id,
				ToFamilyGroupID:   creditors[j].id,
				AmountCents:       amount,
			})
		}
		debtors[i].amount -= amount
		creditors[j].amount -= amount
		if debtors[i].amount == 0 {
			i++
		}
		if creditors[j].amount == 0 {
			j++
		}
	}
	return transfers
}
