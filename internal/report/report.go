// Package report builds the financial workbook for an organization's year.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/cabinshare/internal/bill"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

const (
	SheetPayments = "Payments"
	SheetReceipts = "Receipts"
	SheetBills    = "Bills"
	SheetBalances = "Balances"

	moneyFormat = `"$"#,##0.00;[Red]-"$"#,##0.00`
)

// Data is everything the workbook shows.
type Data struct {
	Year      int
	Today     string
	Groups    []model.FamilyGroup
	Payments  []model.Payment
	Receipts  []model.Receipt
	Bills     []model.BillView
	Balances  []model.Balance
	Transfers []model.Transfer
}

// Builder loads report data from the stores.
type Builder struct {
	groups   *store.FamilyGroupStore
	payments *store.PaymentStore
	receipts *store.ReceiptStore
	bills    *store.BillStore
	now      func() time.Time
}

func NewBuilder(groups *store.FamilyGroupStore, payments *store.PaymentStore, receipts *store.ReceiptStore, bills *store.BillStore) *Builder {
	return &Builder{groups: groups, payments: payments, receipts: receipts, bills: bills, now: time.Now}
}

// Load collects the organization's financial rows for the year.
func (b *Builder) Load(organizationID int64, year int) (*Data, error) {
	now := b.now().UTC()
	d := &Data{Year: year, Today: now.Format(model.DateLayout)}

	var err error
	if d.Groups, err = b.groups.List(organizationID); err != nil {
		return nil, err
	}
	if d.Payments, err = b.payments.ListForYear(organizationID, year); err != nil {
		return nil, err
	}
	ledger.Decorate(d.Payments, d.Today)

	from := fmt.Sprintf("%04d-01-01", year)
	to := fmt.Sprintf("%04d-01-01", year+1)
	if d.Receipts, err = b.receipts.List(organizationID, from, to); err != nil {
		return nil, err
	}
	d.Balances = ledger.Balances(d.Groups, d.Receipts)
	d.Transfers = ledger.Settle(d.Balances)

	bills, err := b.bills.List(organizationID, false)
	if err != nil {
		return nil, err
	}
	for _, rb := range bills {
		last, err := b.bills.LastPayment(rb.ID)
		if err != nil {
			return nil, err
		}
		view := bill.View(rb, last, now)
		view.AnnualCents = bill.ProjectYear([]model.RecurringBill{rb}, year)
		d.Bills = append(d.Bills, view)
	}
	return d, nil
}

// Write renders the workbook to w.
func Write(w io.Writer, d *Data) error {
	f := excelize.NewFile()
	defer f.Close()

	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(moneyFormat)})
	if err != nil {
		return fmt.Errorf("money style: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	names := groupNames(d.Groups)
	sheets := []struct {
		name   string
		header []any
		rows   [][]any
		money  []string
	}{
		{SheetPayments, []any{"Family group", "Type", "Description", "Amount", "Paid", "Outstanding", "Due", "Paid on", "Method", "Status"},
			paymentRows(d.Payments, names), []string{"D", "E", "F"}},
		{SheetReceipts, []any{"Date", "Description", "Category", "Paid by", "Amount"},
			receiptRows(d.Receipts, names), []string{"E"}},
		{SheetBills, []any{"Name", "Category", "Provider", "Account", "Schedule", "Amount", "Annual", "Due", "Status", "Auto-pay"},
			billRows(d.Bills), []string{"F", "G"}},
		{SheetBalances, []any{"Family group", "Shares", "Paid", "Owed", "Net"},
			balanceRows(d.Balances, d.Transfers, names), []string{"C", "D", "E"}},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("new sheet %s: %w", s.name, err)
		}
		if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
			return fmt.Errorf("write %s header: %w", s.name, err)
		}
		last, _ := excelize.CoordinatesToCellName(len(s.header), 1)
		if err := f.SetCellStyle(s.name, "A1", last, header); err != nil {
			return fmt.Errorf("style %s header: %w", s.name, err)
		}
		for r, row := range s.rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("write %s row %d: %w", s.name, r+2, err)
			}
		}
		for _, col := range s.money {
			if err := f.SetColStyle(s.name, col, money); err != nil {
				return fmt.Errorf("style %s column %s: %w", s.name, col, err)
			}
		}
		lastCol, _ := excelize.ColumnNumberToName(len(s.header))
		if err := f.SetColWidth(s.name, "A", lastCol, 16); err != nil {
			return fmt.Errorf("size %s columns: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func ptr(s string) *string { return &s }

func dollars(cents int64) float64 {
	return float64(cents) / 100
}

func groupNames(groups []model.FamilyGroup) map[int64]string {
	names := make(map[int64]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}
	return names
}

func paymentRows(payments []model.Payment, names map[int64]string) [][]any {
	rows := make([][]any, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []any{
			names[p.FamilyGroupID], p.PaymentType, p.Description,
			dollars(p.AmountCents), dollars(p.AmountPaidCents), dollars(p.Outstanding()),
			p.DueDate, p.PaidDate, p.PaymentMethod, p.Status,
		})
	}
	return rows
}

func receiptRows(receipts []model.Receipt, names map[int64]string) [][]any {
	rows := make([][]any, 0, len(receipts))
	var total int64
	for _, r := range receipts {
		payer := ""
		if r.FamilyGroupID != nil {
			payer = names[*r.FamilyGroupID]
		}
		total += r.AmountCents
		rows = append(rows, []any{r.ReceiptDate, r.Description, r.Category, payer, dollars(r.AmountCents)})
	}
	return append(rows, []any{"", "Total", "", "", dollars(total)})
}

func billRows(bills []model.BillView) [][]any {
	rows := make([][]any, 0, len(bills))
	var annual int64
	for _, b := range bills {
		annual += b.AnnualCents
		autoPay := "no"
		if b.AutoPay {
			autoPay = "yes"
		}
		rows = append(rows, []any{
			b.Name, b.Category, b.Provider, b.AccountNumber, b.Schedule,
			dollars(b.AmountCents), dollars(b.AnnualCents), b.CurrentDueDate, b.Status, autoPay,
		})
	}
	return append(rows, []any{"Total", "", "", "", "", "", dollars(annual)})
}

func balanceRows(balances []model.Balance, transfers []model.Transfer, names map[int64]string) [][]any {
	rows := make([][]any, 0, len(balances)+len(transfers)+2)
	for _, b := range balances {
		rows = append(rows, []any{b.FamilyGroupName, b.Shares, dollars(b.PaidCents), dollars(b.OwedCents), dollars(b.NetCents)})
	}
	if len(transfers) == 0 {
		return rows
	}
	rows = append(rows, []any{}, []any{"Settlement"})
	for _, t := range transfers {
		rows = append(rows, []any{names[t.FromFamilyGroupID] + " pays " + names[t.ToFamilyGroupID], "", "", "", dollars(t.AmountCents)})
	}
	return rows
}
