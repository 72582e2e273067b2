package recommend

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/rustyeddy/ashare/guard"
	"github.com/rustyeddy/ashare/regime"
)

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"px":  func(x float64) string { return strconv.FormatFloat(x, 'f', 2, 64) },
	"pct": func(x float64) string { return strconv.FormatFloat(100*x, 'f', 1, 64) + "%" },
	"join": func(items []string) string {
		if len(items) == 0 {
			return "-"
		}
		return strings.Join(items, "；")
	},
	"themes": func(ts []regime.Theme) string {
		names := make([]string, len(ts))
		for i, t := range ts {
			names[i] = t.Name
		}
		return strings.Join(names, "、")
	},
}

var responseTmpl = template.Must(template.New("response").Funcs(funcs).Parse(
	`{{.AsOf}} 市场环境：{{.Env.Grade}}｜主线：{{themes .Themes}}
{{- if not .Tradeable}}
{{.Message}}
{{- end}}
推荐标的：
{{- range $i, $p := .Picks}}
{{inc $i}}. {{$p.Symbol}} {{$p.Name}}｜{{$p.Theme}}｜评分 {{printf "%.1f" $p.Score}}｜冠军 {{$p.Champion.Strategy}}{{if $p.Flags.MustObserveOnly}}｜仅观察{{end}}
{{- with $p.TradePlan}}
   关键带：S1 {{px .ChipAndBands.S1}} / S2 {{px .ChipAndBands.S2}} / R1 {{px .ChipAndBands.R1}} / R2 {{px .ChipAndBands.R2}}（{{.Panel.BandSource}}）｜{{.Q}}
   {{.WindowA}}
   {{.WindowB}}
   失效：{{join .Invalidation}}
   风控：{{.Risk.StopLoss}}；{{.Risk.TimeStop}}；{{.Risk.AddRule}}
   仓位：{{.Risk.PositionShares}}股（风险预算 {{pct .Risk.RiskBudgetPct}}）
{{- end}}
{{- else}}
今日无推荐，空仓观望。
{{- end}}
执行清单：
{{- range .ExecutionChecklist}}
{{.}}
{{- end}}
{{.Disclaimer}}
`))

// Render formats the payload as the readable final response. The text
// passes the guard before it is returned.
func Render(p *Payload) (string, error) {
	var b strings.Builder
	if err := responseTmpl.Execute(&b, p); err != nil {
		return "", err
	}
	_, out := guard.Rewrite(b.String())
	return out, nil
}
