package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/types"
)

// LiveExecutor routes orders to the live (or testnet) futures account. All
// fills are market; the protective stop is a venue-side STOP_MARKET that
// closes the whole position.
type LiveExecutor struct {
	client *Client
	log    logger.Logger
	// quoteAsset is the margin asset whose balance reports as equity.
	quoteAsset string
}

// NewLiveExecutor wraps the client as an order executor.
func NewLiveExecutor(client *Client, log logger.Logger) *LiveExecutor {
	return &LiveExecutor{client: client, log: log, quoteAsset: "USDT"}
}

func (e *LiveExecutor) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func orderSide(s types.Side) futures.SideType {
	if s == types.Long {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

// Submit places a market order for the signal's side.
func (e *LiveExecutor) Submit(o types.Order) error {
	ctx, cancel := e.ctx()
	defer cancel()
	if err := e.client.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := e.client.api.NewCreateOrderService().
		Symbol(o.Symbol).
		Side(orderSide(o.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(o.Qty)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange.Submit %s: %w", o.Symbol, err)
	}
	e.log.Info("order_submitted",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", o.Qty),
		logger.String("comment", o.Comment))
	return nil
}

// ClosePosition reduces the open position by the given fraction with a
// reduce-only market order.
func (e *LiveExecutor) ClosePosition(symbol string, fraction, price float64) error {
	ctx, cancel := e.ctx()
	defer cancel()

	qty, _, err := e.client.PositionAmount(ctx, symbol)
	if err != nil {
		return err
	}
	if qty == 0 {
		return fmt.Errorf("exchange.ClosePosition %s: no open position", symbol)
	}

	side := types.Short // closing a long sells
	if qty < 0 {
		side = types.Long
		qty = -qty
	}
	closeQty := qty * fraction

	if err := e.client.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = e.client.api.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(closeQty)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange.ClosePosition %s: %w", symbol, err)
	}
	e.log.Info("position_reduced",
		logger.String("symbol", symbol),
		logger.Float64("fraction", fraction),
		logger.Float64("qty", closeQty),
		logger.Float64("ref_price", price))
	return nil
}

// ModifyStop replaces the venue-side protective stop: cancel open orders,
// then place a close-position STOP_MARKET at the new level.
func (e *LiveExecutor) ModifyStop(symbol string, price float64) error {
	ctx, cancel := e.ctx()
	defer cancel()

	qty, _, err := e.client.PositionAmount(ctx, symbol)
	if err != nil {
		return err
	}
	if qty == 0 {
		return fmt.Errorf("exchange.ModifyStop %s: no open position", symbol)
	}
	side := types.Short
	if qty < 0 {
		side = types.Long
	}

	if err := e.client.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.client.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("exchange.ModifyStop %s: cancel: %w", symbol, err)
	}
	if err := e.client.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = e.client.api.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatQty(price)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange.ModifyStop %s: %w", symbol, err)
	}
	return nil
}

// Equity returns the quote-asset wallet balance; 0 on query failure (the
// risk layer treats zero equity as "size nothing").
func (e *LiveExecutor) Equity() float64 {
	ctx, cancel := e.ctx()
	defer cancel()
	if err := e.client.limiter.Wait(ctx); err != nil {
		return 0
	}
	balances, err := e.client.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		e.log.Error("equity_query_failed", logger.Err(err))
		return 0
	}
	for _, b := range balances {
		if b.Asset != e.quoteAsset {
			continue
		}
		v, err := parsePrice(b.Balance)
		if err != nil {
			e.log.Error("equity_parse_failed", logger.Err(err))
			return 0
		}
		return v
	}
	return 0
}

// Position returns the signed quantity and average entry price.
func (e *LiveExecutor) Position(symbol string) (float64, float64) {
	ctx, cancel := e.ctx()
	defer cancel()
	qty, avg, err := e.client.PositionAmount(ctx, symbol)
	if err != nil {
		e.log.Error("position_query_failed",
			logger.String("symbol", symbol), logger.Err(err))
		return 0, 0
	}
	return qty, avg
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
