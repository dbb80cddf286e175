package parser

import "strings"

// The token sits at the end of the text preceding the payload, after an
// optional "Alert on " prefix and the instrument ticker. Extraction is an
// ordered pipeline of pure string transformations so each rule stays
// independently testable.

type headRule func(head, symbol string) string

var headRules = []headRule{
	stripAlertPrefix,
	stripSymbol,
	stripNonAlphanumeric,
}

// ExtractToken reduces the text before the payload to the bare strategy
// token. Returns "" when nothing token-like remains.
func ExtractToken(head, symbol string) string {
	for _, rule := range headRules {
		head = rule(head, symbol)
	}
	return head
}

func stripAlertPrefix(head, _ string) string {
	const prefix = "alert on "
	trimmed := strings.TrimSpace(head)
	if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return trimmed[len(prefix):]
	}
	return trimmed
}

// stripSymbol removes a leading instrument ticker, including the ".P"
// perpetual-contract marker TradingView appends (BTCUSDT.P7RSI -> 7RSI).
func stripSymbol(head, symbol string) string {
	if symbol == "" {
		return head
	}
	upper := strings.ToUpper(head)
	for _, prefix := range []string{symbol + ".P", symbol} {
		if strings.HasPrefix(upper, prefix) {
			return head[len(prefix):]
		}
	}
	return head
}

// Token comparison is alphanumeric-only and case-sensitive.
func stripNonAlphanumeric(head, _ string) string {
	var b strings.Builder
	for _, r := range head {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeSymbol upcases the ticker and drops an exchange prefix
// (BINANCE:BTCUSDT -> BTCUSDT) and the perpetual marker.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(symbol, ":"); i >= 0 {
		symbol = symbol[i+1:]
	}
	symbol = strings.TrimSuffix(symbol, ".P")
	return symbol
}
