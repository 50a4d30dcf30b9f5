package api

import (
	"github.com/shopspring/decimal"
)

// placeOrderRequest is the POST /orders and POST /orders/can_execute body.
type placeOrderRequest struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
}

type canExecuteResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// setBalanceRequest is the PATCH /admin/balance/{asset} body.
type setBalanceRequest struct {
	Free decimal.Decimal `json:"free"`
	Used decimal.Decimal `json:"used"`
}

// fundRequest is the POST /admin/fund body.
type fundRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// forcePriceRequest is the PATCH /admin/tickers/{sym}/price body.
type forcePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type healthResponse struct {
	Status string `json:"status"`
}
