package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"ledger/internal/core"
)

func view(id int64, typ core.TransactionType, date, desc string, cents int64, createdBy, linked string) core.TransactionView {
	d, _ := core.ParseDate(date)
	return core.TransactionView{
		Transaction: core.Transaction{
			ID:          id,
			Type:        typ,
			Description: desc,
			Amount:      core.Money{Cents: cents},
			Date:        d,
		},
		CreatedBy:     createdBy,
		LinkedExpense: linked,
	}
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		typ  core.TransactionType
		ext  string
		want string
	}{
		{core.Revenue, "csv", "revenue-export-2024-03-09.csv"},
		{core.Expense, "csv", "expenses-export-2024-03-09.csv"},
		{core.Expense, "xlsx", "expenses-export-2024-03-09.xlsx"},
	}
	for _, tt := range tests {
		if got := FileName(tt.typ, now, tt.ext); got != tt.want {
			t.Errorf("FileName(%s, %s) = %q, want %q", tt.typ, tt.ext, got, tt.want)
		}
	}
	if got := ContentDisposition("revenue-export-2024-03-09.csv"); got != `attachment; filename="revenue-export-2024-03-09.csv"` {
		t.Errorf("ContentDisposition = %s", got)
	}
}

func TestWriteCSVExpensesKeepsOrder(t *testing.T) {
	rows := []core.TransactionView{
		view(2, core.Expense, "2024-01-06", "Later", 123456, "Alice", ""),
		view(1, core.Expense, "2024-01-05", "Earlier", 50, "", ""),
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, core.Expense, rows); err != nil {
		t.Fatal(err)
	}

	want := "Date,Description,Amount,Created By\n" +
		"2024-01-06,Later,1234.56,Alice\n" +
		"2024-01-05,Earlier,0.50,Unknown\n"
	if buf.String() != want {
		t.Fatalf("got\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteCSVRevenueQuoting(t *testing.T) {
	rows := []core.TransactionView{
		view(3, core.Revenue, "2024-02-01", `Sale, "big" one`, 100000, "Bob", "Stock, batch 1"),
		view(4, core.Revenue, "2024-01-01", "Plain", 1, "Bob", ""),
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, core.Revenue, rows); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if lines[0] != "Date,Description,Amount,Created By,Linked Expense" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != `2024-02-01,"Sale, ""big"" one",1000.00,Bob,"Stock, batch 1"` {
		t.Fatalf("row = %q", lines[1])
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[2][4] != "" || records[2][2] != "0.01" {
		t.Fatalf("unexpected records %q", records)
	}
}

func TestWriteXLSX(t *testing.T) {
	rows := []core.TransactionView{
		view(2, core.Revenue, "2024-01-06", "Invoice 7", 250075, "Alice", "Hosting"),
		view(1, core.Revenue, "2024-01-05", "Invoice 6", 1000, "", ""),
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, core.Revenue, rows); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.GetRows("Revenue")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d", len(got))
	}
	if strings.Join(got[0], "|") != "Date|Description|Amount|Created By|Linked Expense" {
		t.Fatalf("header = %q", got[0])
	}
	if got[1][0] != "2024-01-06" || got[1][2] != "2500.75" || got[1][4] != "Hosting" {
		t.Fatalf("first row = %q", got[1])
	}
	if got[2][3] != UnknownOwner {
		t.Fatalf("second row owner = %q", got[2][3])
	}
}
