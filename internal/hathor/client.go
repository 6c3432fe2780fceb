// Package hathor is a thin client for the public node HTTP API. Amounts on
// the wire are centi-units; everything returned here is converted to HTR.
package hathor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Deposit is one incoming output observed at a watched address.
type Deposit struct {
	TxID   string
	Amount float64 // in HTR
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(nodeURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(nodeURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

type addressHistoryResponse struct {
	Success bool        `json:"success"`
	History []historyTx `json:"history"`
}

type historyTx struct {
	TxID    string     `json:"tx_id"`
	Outputs []txOutput `json:"outputs"`
}

type txOutput struct {
	Value   int64 `json:"value"`
	Decoded struct {
		Address string `json:"address"`
	} `json:"decoded"`
}

type addressInfoResponse struct {
	Success             bool  `json:"success"`
	TotalAmountReceived int64 `json:"total_amount_received"`
}

// Deposits returns every incoming output at address found in the node's
// transaction history. The caller is responsible for filtering out
// transactions it has already credited.
func (c *Client) Deposits(ctx context.Context, address string) ([]Deposit, error) {
	var history addressHistoryResponse
	if err := c.get(ctx, "thin_wallet/address_history", address, &history); err != nil {
		return nil, err
	}
	if !history.Success {
		return nil, fmt.Errorf("node rejected history request for %s", address)
	}

	var deposits []Deposit
	for _, tx := range history.History {
		for _, out := range tx.Outputs {
			if out.Decoded.Address != address || out.Value <= 0 {
				continue
			}
			deposits = append(deposits, Deposit{
				TxID:   tx.TxID,
				Amount: float64(out.Value) / 100,
			})
		}
	}
	return deposits, nil
}

// AddressBalance returns the total amount ever received at address, in HTR.
func (c *Client) AddressBalance(ctx context.Context, address string) (float64, error) {
	var info addressInfoResponse
	if err := c.get(ctx, "thin_wallet/address_info", address, &info); err != nil {
		return 0, err
	}
	if !info.Success {
		return 0, fmt.Errorf("node rejected info request for %s", address)
	}
	return float64(info.TotalAmountReceived) / 100, nil
}

func (c *Client) get(ctx context.Context, endpoint, address string, out any) error {
	u := fmt.Sprintf("%s/%s?address=%s", c.baseURL, endpoint, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "whatspay/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("node request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node api error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode node response: %w", err)
	}
	return nil
}
