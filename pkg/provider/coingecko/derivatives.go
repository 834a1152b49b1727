package coingecko

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// DerivativesExchange is one venue listed by /derivatives/exchanges.
type DerivativesExchange struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DerivativesContract is one contract ticker from a venue listing.
type DerivativesContract struct {
	Symbol       string      `json:"symbol"`
	Base         string      `json:"base"`
	Target       string      `json:"target"`
	ContractType string      `json:"contract_type"`
	Last         json.Number `json:"last"`
	FundingRate  json.Number `json:"funding_rate"`
	OpenInterest json.Number `json:"open_interest_usd"`
	Converted    struct {
		USD json.Number `json:"usd"`
	} `json:"converted_volume"`
}

type derivativesExchangeDetail struct {
	Tickers []DerivativesContract `json:"tickers"`
}

// DerivativesExchanges lists every derivatives venue the API knows about.
func (c *Client) DerivativesExchanges(ctx context.Context) ([]DerivativesExchange, error) {
	query := url.Values{}
	query.Set("per_page", "250")
	var exchanges []DerivativesExchange
	if err := c.get(ctx, "/derivatives/exchanges", query, &exchanges); err != nil {
		return nil, err
	}
	return exchanges, nil
}

// DerivativesContracts fetches every contract ticker for one venue.
func (c *Client) DerivativesContracts(ctx context.Context, exchangeID string) ([]DerivativesContract, error) {
	query := url.Values{}
	query.Set("include_tickers", "all")
	var detail derivativesExchangeDetail
	if err := c.get(ctx, "/derivatives/exchanges/"+url.PathEscape(exchangeID), query, &detail); err != nil {
		return nil, err
	}
	return detail.Tickers, nil
}

// Float converts a json.Number field to float64, tolerating empty values.
func Float(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
