package service

import (
	"context"

	"go.uber.org/zap"

	"signalmarket/internal/audit"
	"signalmarket/internal/dispatch"
	"signalmarket/internal/models"
	"signalmarket/internal/parser"
	"signalmarket/internal/resolver"
	"signalmarket/internal/tracker"
)

// IngestService runs the full alert pipeline: parse, resolve the strategy,
// record the lifecycle transition, then fan out and audit.
type IngestService struct {
	Resolver      *resolver.Resolver
	Tracker       *tracker.Tracker
	Hub           *dispatch.Hub
	Audit         *audit.Recorder
	Logger        *zap.Logger
	DefaultSource string
}

// IngestOutcome is what the webhook endpoint reports back to the sender.
type IngestOutcome struct {
	Signal      *models.Signal
	ClosedEntry *models.Signal
	StrategyID  string
	Duplicate   bool
	Orphan      bool
}

// HandleAlert processes one raw webhook body. Parse and validation failures
// surface as typed errors for the handler to map onto 400s.
func (s *IngestService) HandleAlert(ctx context.Context, raw, symbol, source string) (*IngestOutcome, error) {
	if source == "" {
		source = s.DefaultSource
	}

	cand, err := parser.Parse(raw, symbol)
	if err != nil {
		return nil, err
	}
	cand.Source = source

	strategyID, err := s.Resolver.Resolve(ctx, cand.Token, source)
	if err != nil {
		return nil, err
	}

	// Publishing happens inside the tracker's per-key critical section so
	// subscribers see events for one strategy+symbol in persist order.
	res, err := s.Tracker.Record(ctx, cand, strategyID, func(r *tracker.Result) {
		s.publish(r, strategyID)
	})
	if err != nil {
		if s.Audit != nil {
			s.Audit.TradeExecution("", false, map[string]string{
				"symbol": cand.Symbol,
				"token":  cand.Token,
				"error":  err.Error(),
			})
		}
		return nil, err
	}

	out := &IngestOutcome{
		Signal:      res.Signal,
		ClosedEntry: res.ClosedEntry,
		StrategyID:  strategyID,
		Duplicate:   res.Duplicate,
		Orphan:      res.Orphan,
	}
	if res.Duplicate {
		return out, nil
	}

	if s.Audit != nil && res.Signal != nil {
		s.Audit.TradeExecution(res.Signal.ID, true, map[string]any{
			"type":      res.Signal.Type,
			"direction": res.Signal.Direction,
			"symbol":    res.Signal.Symbol,
			"orphan":    res.Orphan,
		})
	}
	if s.Logger != nil && res.Signal != nil {
		s.Logger.Info("alert ingested",
			zap.String("signal_id", res.Signal.ID),
			zap.String("strategy_id", strategyID),
			zap.String("symbol", res.Signal.Symbol),
			zap.String("type", res.Signal.Type),
			zap.Bool("orphan", res.Orphan),
		)
	}
	return out, nil
}

func (s *IngestService) publish(res *tracker.Result, strategyID string) {
	if s.Hub == nil || res.Signal == nil {
		return
	}
	s.Hub.Publish(dispatch.Event{
		Kind:       dispatch.EventSignalNew,
		StrategyID: strategyID,
		Symbol:     res.Signal.Symbol,
		Signal:     res.Signal,
	})
	if res.ClosedEntry != nil {
		s.Hub.Publish(dispatch.Event{
			Kind:       dispatch.EventSignalClose,
			StrategyID: strategyID,
			Symbol:     res.ClosedEntry.Symbol,
			Signal:     res.ClosedEntry,
		})
	}
}
