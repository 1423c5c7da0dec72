// Package submit routes signed execution requests to the chain, either
// through the public transaction pool or a protected relay, and resolves
// each submission to a terminal outcome.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Relay posts signed transactions to a private relay so they never appear
// in the public mempool before inclusion.
type Relay struct {
	url    string
	client *http.Client
}

func NewRelay(url string) *Relay {
	return &Relay{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type relayRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type relayResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts the raw transaction via eth_sendPrivateTransaction.
func (r *Relay) Send(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("submit: encoding transaction: %w", err)
	}
	body, err := json.Marshal(relayRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendPrivateTransaction",
		Params:  []any{map[string]string{"tx": hexutil.Encode(raw)}},
	})
	if err != nil {
		return fmt.Errorf("submit: encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit: posting to relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("submit: relay returned %d: %s", resp.StatusCode, snippet)
	}
	var out relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("submit: decoding relay response: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("submit: relay error %d: %s", out.Error.Code, out.Error.Message)
	}
	return nil
}
