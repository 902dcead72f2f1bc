package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// Console implementa ports.StatusNotifier escribiendo tablas en texto plano.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// PrintStatus imprime una línea de resumen y una fila por token.
func (c *Console) PrintStatus(rows []domain.TokenStatus) {
	now := c.now().Format("15:04:05")
	if len(rows) == 0 {
		fmt.Fprintf(c.out, "[%s] no instruments\n", now)
		return
	}

	var resting, pending, inFlight int
	var exposure float64
	for _, r := range rows {
		for _, o := range []domain.RestingOrder{r.Buy, r.Sell} {
			switch o.State {
			case domain.OrderResting:
				resting++
			case domain.OrderPendingReplace:
				pending++
			}
		}
		inFlight += r.InFlight
		exposure += r.Position.Size * r.Position.AvgPrice
	}
	fmt.Fprintf(c.out, "[%s] %d tokens | %d resting | %d pending | %d in-flight | exposure $%.2f\n",
		now, len(rows), resting, pending, inFlight, exposure)

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Token", "Pos", "Avg", "Buy", "Sell", "In-flight")
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.MarketID
		}
		table.Append(
			truncate(name, 32),
			shortID(r.Token),
			fmt.Sprintf("%.2f", r.Position.Size),
			fmt.Sprintf("%.4f", r.Position.AvgPrice),
			orderLabel(r.Buy),
			orderLabel(r.Sell),
			fmt.Sprintf("%d", r.InFlight),
		)
	}
	table.Render()
}

// PrintReport imprime el resumen del journal por instrumento.
func (c *Console) PrintReport(rows []domain.MarketReport, from, to time.Time) {
	fmt.Fprintf(c.out, "\n  Journal %s → %s\n", from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04"))
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  No fills or merges in range.")
		return
	}

	var total domain.MarketReport
	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Fills", "Bought", "Cost", "Sold", "Proceeds", "Merges", "Merged", "Gas POL", "Cash flow")
	for _, r := range rows {
		table.Append(reportRow(shortID(r.MarketID), r)...)
		total.Fills += r.Fills
		total.BoughtSize += r.BoughtSize
		total.BoughtCost += r.BoughtCost
		total.SoldSize += r.SoldSize
		total.SoldProceeds += r.SoldProceeds
		total.Merges += r.Merges
		total.Merged += r.Merged
		total.GasPOL += r.GasPOL
	}
	table.Append(reportRow("TOTAL", total)...)
	table.Render()

	fmt.Fprintln(c.out, "  Cash flow = proceeds + merged - cost (sin valorar inventario abierto)")
}

func reportRow(label string, r domain.MarketReport) []any {
	return []any{
		label,
		fmt.Sprintf("%d", r.Fills),
		fmt.Sprintf("%.2f", r.BoughtSize),
		fmt.Sprintf("$%.2f", r.BoughtCost),
		fmt.Sprintf("%.2f", r.SoldSize),
		fmt.Sprintf("$%.2f", r.SoldProceeds),
		fmt.Sprintf("%d", r.Merges),
		fmt.Sprintf("$%.2f", r.Merged),
		fmt.Sprintf("%.4f", r.GasPOL),
		fmt.Sprintf("$%+.2f", r.CashFlow()),
	}
}

func orderLabel(o domain.RestingOrder) string {
	switch o.State {
	case domain.OrderResting:
		return fmt.Sprintf("%.2f x %.2f", o.Price, o.Size)
	case domain.OrderPendingReplace:
		return "pending"
	default:
		return "-"
	}
}

// shortID acorta IDs hex/decimales largos: 0x1234…abcd.
func shortID(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-1]) + "…"
}
