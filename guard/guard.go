// Package guard keeps user-facing text free of numeric trigger phrasing
// and gates the tradeable flag on degraded runs.
package guard

import (
	"regexp"
	"strings"
)

const (
	// Replacement is substituted for every trigger phrase.
	Replacement = "满足关键结构后执行（去数值触发）"
	// Note is appended once when anything was rewritten.
	Note = "【文本合规降级】已移除数值触发表达，仅保留结构条件；不满足则观望。"

	notTradeablePrefix = "NOT_TRADEABLE:"
)

// num is a price or quantity in ASCII or full-width digits.
const num = `[0-9０-９]+(?:[.．][0-9０-９]+)?`

var triggers = []*regexp.Regexp{
	regexp.MustCompile(`到\s*` + num + `元(?:买|买入)`),
	regexp.MustCompile(`(?:>=|≥|＞＝)\s*` + num),
	regexp.MustCompile(`突破\s*` + num + `(元)?(就|立刻)?买`),
	regexp.MustCompile(`条件单|触发价|市价单立刻`),
	regexp.MustCompile(`站上\s*` + num + `(元)?(就|立刻)?买`),
}

// Rewrite replaces trigger phrases in text. ok is false when a rewrite
// happened, in which case the compliance note is appended.
func Rewrite(text string) (ok bool, out string) {
	out = text
	bad := false
	for _, re := range triggers {
		if re.MatchString(out) {
			bad = true
			out = re.ReplaceAllLiteralString(out, Replacement)
		}
	}
	if bad && !strings.Contains(out, Note) {
		out += "\n" + Note
	}
	return !bad, out
}

// Reason is one entry of a run's degrade ledger.
type Reason struct {
	Code   string         `json:"reason_code"`
	Detail map[string]any `json:"detail"`
}

// Tradeable decides the tradeable flag. Any degrade reason makes the run
// not tradeable and prefixes message with up to two reason codes.
func Tradeable(reasons []Reason, message string) (bool, string) {
	if len(reasons) == 0 {
		return true, message
	}
	msg := strings.TrimSpace(message)
	if strings.HasPrefix(msg, notTradeablePrefix) {
		return false, msg
	}
	codes := make([]string, 0, 2)
	for _, r := range reasons[:min(2, len(reasons))] {
		codes = append(codes, r.Code)
	}
	prefix := notTradeablePrefix + " " + strings.Join(codes, ", ")
	if msg == "" {
		return false, prefix
	}
	return false, prefix + " | " + msg
}
