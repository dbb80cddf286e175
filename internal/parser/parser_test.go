package parser

import (
	"errors"
	"testing"

	"signalmarket/internal/models"
)

func TestParse_EntryLong(t *testing.T) {
	raw := `7RSI{"action":"buy","contracts":"100","marketPosition":"long"}`
	cand, err := Parse(raw, "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Token != "7RSI" {
		t.Fatalf("token=%q want=7RSI", cand.Token)
	}
	if cand.Type != models.SignalTypeEntry || cand.Direction != models.DirectionLong {
		t.Fatalf("type=%s direction=%s want=ENTRY/LONG", cand.Type, cand.Direction)
	}
	if cand.Contracts != "100" {
		t.Fatalf("contracts=%q want=100", cand.Contracts)
	}
	if cand.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q want=BTCUSDT", cand.Symbol)
	}
	if cand.RawText != raw {
		t.Fatalf("raw text must be carried unchanged")
	}
}

func TestParse_EntryShort(t *testing.T) {
	cand, err := Parse(`GRID{"action":"sell","contracts":"5","marketPosition":"short"}`, "ETHUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Type != models.SignalTypeEntry || cand.Direction != models.DirectionShort {
		t.Fatalf("type=%s direction=%s want=ENTRY/SHORT", cand.Type, cand.Direction)
	}
}

func TestParse_ExitWithPrefixAndSymbol(t *testing.T) {
	raw := `Alert on BTCUSDT.P7RSI{"action":"sell","contracts":"100","marketPosition":"flat"}`
	cand, err := Parse(raw, "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Token != "7RSI" {
		t.Fatalf("token=%q want=7RSI", cand.Token)
	}
	if cand.Type != models.SignalTypeExit {
		t.Fatalf("type=%s want=EXIT", cand.Type)
	}
	if cand.Direction != models.DirectionFlat {
		t.Fatalf("exit direction=%s want=FLAT (resolved against the open position later)", cand.Direction)
	}
}

func TestParse_CloseActionIsExit(t *testing.T) {
	cand, err := Parse(`MACD{"action":"close","contracts":"0","marketPosition":"long","prevMarketPosition":"long"}`, "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Type != models.SignalTypeExit {
		t.Fatalf("type=%s want=EXIT", cand.Type)
	}
	if cand.PrevMarketPosition != "long" {
		t.Fatalf("prevMarketPosition=%q want=long", cand.PrevMarketPosition)
	}
}

func TestParse_NoPayload(t *testing.T) {
	_, err := Parse("7RSI buy BTCUSDT", "BTCUSDT")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_MalformedPayload(t *testing.T) {
	_, err := Parse(`7RSI{"action":"buy",`, "BTCUSDT")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_MissingToken(t *testing.T) {
	_, err := Parse(`Alert on BTCUSDT.P{"action":"buy","marketPosition":"long"}`, "BTCUSDT")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_UnrecognizedAction(t *testing.T) {
	_, err := Parse(`7RSI{"action":"hold","marketPosition":"long"}`, "BTCUSDT")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_BareNumericPayloadValues(t *testing.T) {
	cand, err := Parse(`7RSI{"action":"buy","marketPosition":"long","contracts":100,"price":64250.5}`, "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Contracts != "100" {
		t.Fatalf("contracts=%q want=100", cand.Contracts)
	}
	if cand.Price != "64250.5" {
		t.Fatalf("price=%q want=64250.5", cand.Price)
	}
}

func TestParse_SymbolFromPayloadTicker(t *testing.T) {
	cand, err := Parse(`7RSI{"action":"buy","marketPosition":"long","ticker":"BINANCE:BTCUSDT.P"}`, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q want=BTCUSDT", cand.Symbol)
	}
}

func TestExtractToken_Rules(t *testing.T) {
	cases := []struct {
		head   string
		symbol string
		want   string
	}{
		{"7RSI", "BTCUSDT", "7RSI"},
		{"Alert on BTCUSDT.P7RSI", "BTCUSDT", "7RSI"},
		{"BTCUSDT.P3RSI", "BTCUSDT", "3RSI"},
		{"ARUSDT.P3RSI", "ARUSDT", "3RSI"},
		{"Alert on BTCUSDT.P", "BTCUSDT", ""},
		{"  GridBot v2 ", "", "GridBotv2"},
	}
	for _, tc := range cases {
		got := ExtractToken(tc.head, tc.symbol)
		if got != tc.want {
			t.Fatalf("ExtractToken(%q, %q)=%q want=%q", tc.head, tc.symbol, got, tc.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol("BINANCE:btcusdt.p"); got != "BTCUSDT" {
		t.Fatalf("got %q want BTCUSDT", got)
	}
}
