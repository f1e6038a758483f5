package ledger

import (
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func ptr(n int64) *int64 { return &n }

func TestBalancesByShares(t *testing.T) {
	groups := []model.FamilyGroup{
		{ID: 1, Name: "A", Shares: 2},
		{ID: 2, Name: "B", Shares: 1},
		{ID: 3, Name: "C", Shares: 1},
	}
	receipts := []model.Receipt{
		{FamilyGroupID: ptr(1), AmountCents: 10000},
		{FamilyGroupID: ptr(2), AmountCents: 2000},
		{FamilyGroupID: nil, AmountCents: 99999},
	}
	got := Balances(groups, receipts)

	want := []struct{ paid, owed, net int64 }{
		{10000, 6000, 4000},
		{2000, 3000, -1000},
		{0, 3000, -3000},
	}
	for i, w := range want {
		if got[i].PaidCents != w.paid || got[i].OwedCents != w.owed || got[i].NetCents != w.net {
			t.Errorf("balance[%d] = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestBalancesRoundingSumsExactly(t *testing.T) {
	groups := []model.FamilyGroup{{ID: 1, Shares: 1}, {ID: 2, Shares: 1}, {ID: 3, Shares: 1}}
	receipts := []model.Receipt{{FamilyGroupID: ptr(1), AmountCents: 1000}}

	var owed, net int64
	for _, b := range Balances(groups, receipts) {
		owed += b.OwedCents
		net += b.NetCents
	}
	if owed != 1000 {
		t.Errorf("owed sum = %d, want 1000", owed)
	}
	if net != 0 {
		t.Errorf("net sum = %d, want 0", net)
	}
}

func TestSettle(t *testing.T) {
	balances := []model.Balance{
		{FamilyGroupID: 1, NetCents: 4000},
		{FamilyGroupID: 2, NetCents: -1000},
		{FamilyGroupID: 3, NetCents: -3000},
	}
	got := Settle(balances)
	if len(got) != 2 {
		t.Fatalf("transfers = %+v", got)
	}
	if got[0] != (model.Transfer{FromFamilyGroupID: 3, ToFamilyGroupID: 1, AmountCents: 3000}) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1] != (model.Transfer{FromFamilyGroupID: 2, ToFamilyGroupID: 1, AmountCents: 1000}) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestSettleZeroesBalances(t *testing.T) {
	groups := []model.FamilyGroup{{ID: 1, Shares: 3}, {ID: 2, Shares: 2}, {ID: 3, Shares: 2}, {ID: 4, Shares: 1}}
	receipts := []model.Receipt{
		{FamilyGroupID: ptr(1), AmountCents: 1234},
		{FamilyGroupID: ptr(2), AmountCents: 98765},
		{FamilyGroupID: ptr(4), AmountCents: 4321},
	}
	balances := Balances(groups, receipts)
	net := map[int64]int64{}
	for _, b := range balances {
		net[b.FamilyGroupID] = b.NetCents
	}
	for _, tr := range Settle(balances) {
		net[tr.FromFamilyGroupID] += tr.AmountCents
		net[tr.ToFamilyGroupID] -= tr.AmountCents
	}
	for id, n := range net {
		if n != 0 {
			t.Errorf("group %d net after settlement = %d", id, n)
		}
	}
}
