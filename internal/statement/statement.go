// Package statement exports an owner ledger with running balances as xlsx.
package statement

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smallbiznis/flightclub/internal/config"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sheetName   = "Statement"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout  = "2006-01-02 15:04"
)

var headings = []any{"Date", "Description", "Kind", "Amount", "Running balance", "Counted", "Reversed"}

type Params struct {
	fx.In

	Log     *zap.Logger
	Ledger  ledgerdomain.Service
	Billing *config.BillingConfigHolder
}

type Exporter struct {
	log     *zap.Logger
	ledger  ledgerdomain.Service
	billing *config.BillingConfigHolder
}

func New(p Params) *Exporter {
	return &Exporter{
		log:     p.Log.Named("statement.exporter"),
		ledger:  p.Ledger,
		billing: p.Billing,
	}
}

// Export writes the full statement of owner to w and returns a file name.
func (e *Exporter) Export(ctx context.Context, owner ownerdomain.Ref, w io.Writer) (string, error) {
	history, err := e.ledger.History(ctx, owner)
	if err != nil {
		return "", err
	}
	if err := Render(w, history, e.billing.Get().Currency); err != nil {
		e.log.Error("failed to render statement", logger.Owner(owner), zap.Error(err))
		return "", err
	}
	return Filename(history.Account), nil
}

func Filename(account ownerdomain.Account) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(account.Name))
	if name == "" {
		name = account.Ref.ID.String()
	}
	return fmt.Sprintf("statement_%s_%s.xlsx", account.Ref.Type, name)
}

// Render writes one sheet: a title block, the heading row, then every line
// oldest first so the running balance reads downward.
func Render(w io.Writer, history ledgerdomain.ListResponse, currency string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s (%s)", history.Account.Name, history.Account.Ref.Type)
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "A2", "Balance"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "B2", history.Balance.InexactFloat64()); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "C2", currency); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A2", bold); err != nil {
		return err
	}

	const headerRow = 4
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", headerRow), &headings); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", headerRow), fmt.Sprintf("G%d", headerRow), bold); err != nil {
		return err
	}

	row := headerRow + 1
	for i := len(history.Transactions) - 1; i >= 0; i-- {
		line := history.Transactions[i]
		values := []any{
			line.CreatedAt.UTC().Format(dateLayout),
			line.Description,
			string(line.Kind),
			line.Amount.InexactFloat64(),
			line.RunningBalance.InexactFloat64(),
			yesNo(line.Counted),
			reversedAt(line.ReversedAt),
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
		row++
	}
	if row > headerRow+1 {
		if err := f.SetCellStyle(sheetName, fmt.Sprintf("D%d", headerRow+1), fmt.Sprintf("E%d", row-1), money); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		return err
	}

	return f.Write(w)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func reversedAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
