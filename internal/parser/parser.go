package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"signalmarket/internal/models"
)

// ParseError means the raw text carries no recognizable strategy token and
// action. Alerts failing this way are discarded, never retried.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// Candidate is the structured form of one raw alert before resolution and
// lifecycle tracking. Numeric payload fields stay as raw strings here; the
// tracker converts and validates them.
type Candidate struct {
	Token     string
	Symbol    string
	Source    string
	RawText   string
	Type      string
	Direction string

	Action             string
	MarketPosition     string
	PrevMarketPosition string

	Price      string
	Contracts  string
	StopLoss   string
	TakeProfit string
}

// payload is the {…} body of an alert. TradingView placeholders emit numbers
// both quoted and bare, so every field tolerates either.
type payload struct {
	Action             string    `json:"action"`
	MarketPosition     string    `json:"marketPosition"`
	PrevMarketPosition string    `json:"prevMarketPosition"`
	Ticker             string    `json:"ticker"`
	Contracts          flexValue `json:"contracts"`
	Price              flexValue `json:"price"`
	Close              flexValue `json:"close"`
	StopLoss           flexValue `json:"stopLoss"`
	TakeProfit         flexValue `json:"takeProfit"`
}

type flexValue string

func (v *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = flexValue(s)
		return nil
	}
	*v = flexValue(string(b))
	return nil
}

// Parse turns an opaque alert string into a candidate signal. The convention
// is TOKEN{payload}; anything before the token (an "Alert on SYMBOL" prefix,
// the instrument itself) is stripped before the token is read. Pure function:
// no side effects, no defaults on failure.
func Parse(raw, symbol string) (Candidate, error) {
	idx := strings.Index(raw, "{")
	if idx < 0 {
		return Candidate{}, &ParseError{Reason: "no {-delimited payload"}
	}

	var p payload
	if err := json.Unmarshal([]byte(raw[idx:]), &p); err != nil {
		return Candidate{}, &ParseError{Reason: "malformed payload: " + err.Error()}
	}

	if symbol == "" {
		symbol = p.Ticker
	}
	symbol = NormalizeSymbol(symbol)

	token := ExtractToken(raw[:idx], symbol)
	if token == "" {
		return Candidate{}, &ParseError{Reason: "missing strategy token"}
	}

	typ, dir, err := mapAction(p.Action, p.MarketPosition)
	if err != nil {
		return Candidate{}, err
	}

	price := string(p.Price)
	if price == "" {
		price = string(p.Close)
	}

	return Candidate{
		Token:              token,
		Symbol:             symbol,
		RawText:            raw,
		Type:               typ,
		Direction:          dir,
		Action:             strings.ToLower(p.Action),
		MarketPosition:     strings.ToLower(p.MarketPosition),
		PrevMarketPosition: strings.ToLower(p.PrevMarketPosition),
		Price:              price,
		Contracts:          string(p.Contracts),
		StopLoss:           string(p.StopLoss),
		TakeProfit:         string(p.TakeProfit),
	}, nil
}

// mapAction maps the payload's action/marketPosition pair onto the signal
// type and direction. EXIT direction is inherited from the open position being
// closed; it is resolved by the tracker, never guessed here.
func mapAction(action, marketPosition string) (string, string, error) {
	act := strings.ToLower(strings.TrimSpace(action))
	pos := strings.ToLower(strings.TrimSpace(marketPosition))

	if pos == "flat" || act == "close" {
		return models.SignalTypeExit, models.DirectionFlat, nil
	}

	switch {
	case act == "buy" && pos == "long":
		return models.SignalTypeEntry, models.DirectionLong, nil
	case act == "sell" && pos == "short":
		return models.SignalTypeEntry, models.DirectionShort, nil
	}

	return "", "", &ParseError{Reason: fmt.Sprintf("unrecognized action %q with marketPosition %q", action, marketPosition)}
}
