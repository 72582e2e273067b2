package provider

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/ashare/pkg/errs"
)

// TSCode returns the 600000.SH form. Prefixed (sh600000) and bare codes
// are accepted; a bare code starting with 6 or 9 is Shanghai, anything
// else Shenzhen.
func TSCode(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, ".") {
		return s
	}
	if len(s) > 2 && (strings.HasPrefix(s, "SH") || strings.HasPrefix(s, "SZ")) {
		return s[2:] + "." + s[:2]
	}
	if strings.HasPrefix(s, "6") || strings.HasPrefix(s, "9") {
		return s + ".SH"
	}
	return s + ".SZ"
}

// splitCode returns the 6-digit code and the lower-case exchange.
func splitCode(symbol string) (code, exch string) {
	ts := TSCode(symbol)
	code, exch, _ = strings.Cut(ts, ".")
	return code, strings.ToLower(exch)
}

// SinaCode returns the sh600000 form.
func SinaCode(symbol string) string {
	code, exch := splitCode(symbol)
	return exch + code
}

// SecID returns eastmoney's market-prefixed id, 1.600000 or 0.000001.
func SecID(symbol string) (string, error) {
	code, exch := splitCode(symbol)
	switch exch {
	case "sh":
		return "1." + code, nil
	case "sz":
		return "0." + code, nil
	}
	return "", errs.BadData("secid", "unknown exchange in %q", symbol)
}

// PlainCode strips any exchange decoration: 600000.
func PlainCode(symbol string) string {
	code, _ := splitCode(symbol)
	return code
}

func fileCode(symbol string) string {
	return fmt.Sprintf("ts_code=%s", TSCode(symbol))
}
