package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"tradecast/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxSender covers the ethclient surface the submitter touches.
type TxSender interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ChainSubmitter signs built calls with a configured key and sends them to
// the chain. Nonce management is delegated to the node via PendingNonceAt.
type ChainSubmitter struct {
	sender  TxSender
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	timeout time.Duration

	// Serializes nonce fetch and send; concurrent submissions from one key
	// would otherwise collide on the pending nonce.
	mu sync.Mutex
}

// NewChainSubmitter parses the hex private key and prepares a submitter for
// the given chain id.
func NewChainSubmitter(sender TxSender, privateKeyHex string, chainID int64, timeout time.Duration) (*ChainSubmitter, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ChainSubmitter{
		sender:  sender,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		timeout: timeout,
	}, nil
}

// From returns the submitter's sending address.
func (s *ChainSubmitter) From() common.Address {
	return s.from
}

// Submit signs and sends the call as a legacy transaction.
func (s *ChainSubmitter) Submit(ctx context.Context, call BuiltCall) (*models.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nonce, err := s.sender.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, call.To, big.NewInt(0), call.GasLimit, call.GasPrice, call.Data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.sender.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	result := &models.ExecutionResult{
		TxHash:    signed.Hash().Hex(),
		Status:    "submitted",
		Timestamp: time.Now().UTC(),
	}
	if call.GasPrice != nil {
		result.GasPrice = call.GasPrice.String()
	}
	return result, nil
}
