package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/util"
)

// Gateway submits operations through a contract-relay HTTP gateway that
// signs and broadcasts transactions on the service's behalf, then awaits
// confirmations before reporting a receipt.
type Gateway struct {
	baseUrl       string
	contract      string
	confirmations int
	confirmWait   time.Duration
	pollEvery     time.Duration
	client        *http.Client
}

func NewGateway(conf *util.AppConfig) *Gateway {
	return &Gateway{
		baseUrl:       conf.Ledger.GatewayUrl,
		contract:      conf.Ledger.Contract,
		confirmations: conf.Ledger.Confirmations,
		confirmWait:   time.Duration(conf.Ledger.ConfirmTimeoutSec) * time.Second,
		pollEvery:     3 * time.Second,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Gateway) Enabled() bool {
	return true
}

type submitRequest struct {
	Contract string        `json:"contract"`
	Method   string        `json:"method"`
	From     string        `json:"from,omitempty"`
	Args     []interface{} `json:"args"`
}

type submitResponse struct {
	TxHash   string `json:"txHash"`
	Reverted bool   `json:"reverted"`
	Reason   string `json:"reason,omitempty"`
}

type txStatus struct {
	TxHash        string `json:"txHash"`
	BlockNumber   int64  `json:"blockNumber"`
	Confirmations int    `json:"confirmations"`
	Reverted      bool   `json:"reverted"`
	EmittedPostId int64  `json:"emittedPostId"`
}

// submit posts the operation and waits for it to confirm. The wait is
// bounded: past the window the receipt comes back with StatusPending
// rather than an error, because a slow transaction is not a failed one.
func (g *Gateway) submit(ctx context.Context, method, from string, args ...interface{}) (*Receipt, error) {
	body, _ := json.Marshal(submitRequest{
		Contract: g.contract,
		Method:   method,
		From:     from,
		Args:     args,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseUrl+"/contract/submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger gateway: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrLedgerRejected, method, msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ledger gateway returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("%w: decoding submit response: %v", domain.ErrUpstream, err)
	}
	if sub.Reverted {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrLedgerRejected, method, sub.Reason)
	}

	return g.awaitReceipt(ctx, sub.TxHash)
}

// awaitReceipt polls the transaction until it reaches the configured
// confirmation depth or the wait window closes.
func (g *Gateway) awaitReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	deadline := time.Now().Add(g.confirmWait)

	for {
		status, err := g.readTx(ctx, txHash)
		if err == nil {
			if status.Reverted {
				return nil, fmt.Errorf("%w: transaction %s reverted", domain.ErrLedgerRejected, txHash)
			}
			if status.Confirmations >= g.confirmations {
				return &Receipt{
					TxHash:      txHash,
					BlockNumber: status.BlockNumber,
					ChainPostId: status.EmittedPostId,
					Status:      StatusConfirmed,
				}, nil
			}
		} else {
			log.Printf("Ledger: tx %s status check failed: %v", txHash, err)
		}

		if time.Now().After(deadline) {
			log.Printf("Ledger: tx %s still unconfirmed after %s, reporting pending", txHash, g.confirmWait)
			return &Receipt{TxHash: txHash, Status: StatusPending}, nil
		}

		select {
		case <-ctx.Done():
			// The submission is already on the wire; a caller going away
			// does not make it pending forever, the reconciler picks it up.
			return &Receipt{TxHash: txHash, Status: StatusPending}, nil
		case <-time.After(g.pollEvery):
		}
	}
}

func (g *Gateway) readTx(ctx context.Context, txHash string) (*txStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.baseUrl+"/tx/"+txHash, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tx endpoint returned %d", resp.StatusCode)
	}

	var status txStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (g *Gateway) RegisterAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error) {
	return g.submit(ctx, "registerUser", wallet, name, avatarCid)
}

func (g *Gateway) UpdateAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error) {
	return g.submit(ctx, "updateUser", wallet, name, avatarCid)
}

func (g *Gateway) CreatePost(ctx context.Context, wallet, caption, contentId, contentType string) (*Receipt, error) {
	return g.submit(ctx, "createPost", wallet, caption, contentId, contentType)
}

func (g *Gateway) DeletePost(ctx context.Context, chainPostId int64) (*Receipt, error) {
	return g.submit(ctx, "deletePost", "", chainPostId)
}

func (g *Gateway) SetFollow(ctx context.Context, follower, followee string, active bool) (*Receipt, error) {
	if active {
		return g.submit(ctx, "followUser", follower, followee)
	}
	return g.submit(ctx, "unfollowUser", follower, followee)
}

func (g *Gateway) SetLike(ctx context.Context, wallet string, chainPostId int64, active bool) (*Receipt, error) {
	if active {
		return g.submit(ctx, "likePost", wallet, chainPostId)
	}
	return g.submit(ctx, "unlikePost", wallet, chainPostId)
}

func (g *Gateway) AddComment(ctx context.Context, wallet string, chainPostId int64) (*Receipt, error) {
	return g.submit(ctx, "commentOnPost", wallet, chainPostId)
}

func (g *Gateway) Confirm(ctx context.Context, txHash string) (*Receipt, error) {
	status, err := g.readTx(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if status.Reverted {
		return nil, fmt.Errorf("%w: transaction %s reverted", domain.ErrLedgerRejected, txHash)
	}
	if status.Confirmations < g.confirmations {
		return &Receipt{TxHash: txHash, Status: StatusPending}, nil
	}
	return &Receipt{
		TxHash:      txHash,
		BlockNumber: status.BlockNumber,
		ChainPostId: status.EmittedPostId,
		Status:      StatusConfirmed,
	}, nil
}

// Account reads the contract's view of an account, nil if unregistered.
func (g *Gateway) Account(ctx context.Context, wallet string) (*AccountState, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.baseUrl+"/contract/"+g.contract+"/user/"+util.NormalizeWallet(wallet), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger gateway: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ledger gateway returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var state AccountState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}
