package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

// transferTopic is the keccak hash of Transfer(address,address,uint256).
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// rpcClient is the slice of ethclient.Client the source needs.
type rpcClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type EthereumConfig struct {
	// TokenContracts maps currency code to the ERC-20 contract address.
	TokenContracts map[string]string

	// LookbackBlocks bounds the log scan when the payment has no tx hash yet.
	LookbackBlocks uint64
}

// EthereumSource observes ERC-20 Transfer events toward a payment's
// recipient. With a known tx hash it reads the receipt directly; otherwise
// it scans recent Transfer logs filtered by recipient.
type EthereumSource struct {
	client   rpcClient
	tokens   map[string]common.Address
	lookback uint64
}

func NewEthereumSource(client rpcClient, cfg EthereumConfig) *EthereumSource {
	tokens := make(map[string]common.Address, len(cfg.TokenContracts))
	for currency, addr := range cfg.TokenContracts {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		tokens[strings.ToUpper(currency)] = common.HexToAddress(addr)
	}

	lookback := cfg.LookbackBlocks
	if lookback == 0 {
		lookback = 5000
	}

	return &EthereumSource{
		client:   client,
		tokens:   tokens,
		lookback: lookback,
	}
}

func (s *EthereumSource) Observe(ctx context.Context, payment *entity.Payment) (*Observation, error) {
	tokenAddr, ok := s.tokens[payment.Currency]
	if !ok {
		return nil, ErrUnsupportedCurrency
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	if payment.TxHash != nil && strings.TrimSpace(*payment.TxHash) != "" {
		return s.observeReceipt(ctx, payment, tokenAddr, head)
	}

	return s.scanTransfers(ctx, payment, tokenAddr, head)
}

func (s *EthereumSource) observeReceipt(ctx context.Context, payment *entity.Payment, tokenAddr common.Address, head uint64) (*Observation, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(*payment.TxHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil
	}

	// A receipt can carry several transfers; prefer the one toward the
	// expected recipient so unrelated legs don't shadow it.
	var fallback *Observation
	for _, log := range receipt.Logs {
		obs := s.observationFromLog(payment, tokenAddr, *log, head)
		if obs == nil {
			continue
		}
		if strings.EqualFold(obs.Recipient, payment.RecipientAddress) {
			return obs, nil
		}
		if fallback == nil {
			fallback = obs
		}
	}

	return fallback, nil
}

func (s *EthereumSource) scanTransfers(ctx context.Context, payment *entity.Payment, tokenAddr common.Address, head uint64) (*Observation, error) {
	from := uint64(0)
	if head > s.lookback {
		from = head - s.lookback
	}

	recipient := common.HexToAddress(payment.RecipientAddress)
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{tokenAddr},
		Topics: [][]common.Hash{
			{transferTopic},
			nil,
			{common.BytesToHash(recipient.Bytes())},
		},
	})
	if err != nil {
		return nil, err
	}

	// Prefer the transfer matching the expected amount; otherwise report
	// the most recent candidate and let the tracker judge the mismatch.
	var latest *Observation
	for _, log := range logs {
		obs := s.observationFromLog(payment, tokenAddr, log, head)
		if obs == nil {
			continue
		}
		if obs.AmountUnits == payment.AmountUnits {
			return obs, nil
		}
		latest = obs
	}

	return latest, nil
}

func (s *EthereumSource) observationFromLog(payment *entity.Payment, tokenAddr common.Address, log types.Log, head uint64) *Observation {
	if log.Removed || log.Address != tokenAddr {
		return nil
	}
	if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
		return nil
	}

	amount := new(big.Int).SetBytes(log.Data)
	if !amount.IsInt64() {
		return nil
	}

	confirmations := int64(0)
	if head >= log.BlockNumber {
		confirmations = int64(head-log.BlockNumber) + 1
	}

	return &Observation{
		TxHash:        log.TxHash.Hex(),
		BlockNumber:   log.BlockNumber,
		Confirmations: confirmations,
		AmountUnits:   amount.Int64(),
		Recipient:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Currency:      payment.Currency,
	}
}
