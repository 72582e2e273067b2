package journal

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// RunReport is the per-strategy summary rendered as an Org block.
type RunReport struct {
	RunID    string
	Strategy string
	Created  time.Time
	Start    time.Time
	End      time.Time
	Commit   string

	InitialCash float64
	FinalNAV    float64
	GrossReturn float64
	NetReturn   float64
	FeesPaid    float64
	Turnover    float64
	MaxDDPct    float64

	Summary    Summary
	NoFillBuy  int
	NoFillSell int
	ForcedFlat int
	Status     string

	Params map[string]any
	Notes  []string
}

var reportFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(ReportOrgTemplate))

// Org renders the report.
func (r *RunReport) Org() (string, error) {
	buf := new(bytes.Buffer)
	if err := reportTmpl.Execute(buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *RunReport) WriteOrg(path string) error {
	s, err := r.Org()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

const ReportOrgTemplate = `* BACKTEST: {{.Strategy}} {{.Start.Format "2006-01-02"}}..{{.End.Format "2006-01-02"}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:STATUS:      {{.Status}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_CASH:  {{printf "%.2f" .InitialCash}}
:END_NAV:     {{printf "%.2f" .FinalNAV}}
:GROSS_RET:   {{printf "%.2f" (mul100 .GrossReturn)}}
:NET_RET:     {{printf "%.2f" (mul100 .NetReturn)}}
:FEES_PAID:   {{printf "%.2f" .FeesPaid}}
:MAX_DD_PCT:  {{printf "%.2f" (mul100 .MaxDDPct)}}
:TRADES:      {{.Summary.Trades}}
:WINS:        {{.Summary.Wins}}
:LOSSES:      {{.Summary.Losses}}
:COMMIT:      {{if .Commit}}{{.Commit}}{{else}}(unknown){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Strategy Parameters
| Parameter | Value |
|-----------+-------|
{{- range $k, $v := .Params }}
| {{$k}} | {{$v}} |
{{- end }}

** Execution
| Metric       | Value |
|--------------+-------|
| Turnover     | {{printf "%.2f" .Turnover}} |
| No-fill buy  | {{.NoFillBuy}} |
| No-fill sell | {{.NoFillSell}} |
| Forced flat  | {{.ForcedFlat}} |
| Profit factor | {{if ne .Summary.ProfitFactor 0.0}}{{printf "%.2f" .Summary.ProfitFactor}}{{else}}(n/a){{end}} |

{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// FormatFillOrg renders a sell fill as an Org heading with a property
// drawer.
func FormatFillOrg(f Fill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (#%d)\n", strings.ToUpper(f.Side), f.Symbol, f.Time.Format(dateLayout), f.ID)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":STRATEGY: %s\n", f.Strategy)
	fmt.Fprintf(&b, ":TIME: %s\n", f.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, ":PRICE: %.4f\n", f.Price)
	fmt.Fprintf(&b, ":SHARES: %d\n", f.Shares)
	fmt.Fprintf(&b, ":FEES: %.2f\n", f.Fees)
	fmt.Fprintf(&b, ":PNL: %.2f\n", f.PnL)
	fmt.Fprintf(&b, ":REASON: %s\n", f.Reason)
	b.WriteString(":END:\n")
	return b.String()
}
