package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

const (
	testTokenAddr = "0x00000000000000000000000000000000000000aa"
	testRecipient = "0x00000000000000000000000000000000000000bb"
	testSender    = "0x00000000000000000000000000000000000000cc"
)

type fakeRPC struct {
	head     uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
}

func (c *fakeRPC) BlockNumber(_ context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeRPC) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeRPC) FilterLogs(_ context.Context, _ ethereum.FilterQuery) ([]types.Log, error) {
	return c.logs, nil
}

func transferLog(to string, amount int64, blockNumber uint64) types.Log {
	return types.Log{
		Address: common.HexToAddress(testTokenAddr),
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(common.HexToAddress(testSender).Bytes()),
			common.BytesToHash(common.HexToAddress(to).Bytes()),
		},
		Data:        new(big.Int).SetInt64(amount).FillBytes(make([]byte, 32)),
		BlockNumber: blockNumber,
	}
}

func testSource(client *fakeRPC) *EthereumSource {
	return NewEthereumSource(client, EthereumConfig{
		TokenContracts: map[string]string{entity.CurrencyUSDC: testTokenAddr},
		LookbackBlocks: 1000,
	})
}

func chainPayment() *entity.Payment {
	return &entity.Payment{
		ID:               1,
		AmountUnits:      5_000_000,
		Currency:         entity.CurrencyUSDC,
		RecipientAddress: testRecipient,
		Status:           entity.PaymentStatusPending,
	}
}

func TestObserveByReceipt(t *testing.T) {
	txHash := common.HexToHash("0x01")
	log := transferLog(testRecipient, 5_000_000, 100)
	log.TxHash = txHash

	client := &fakeRPC{
		head: 109,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {
				Status: types.ReceiptStatusSuccessful,
				Logs:   []*types.Log{&log},
			},
		},
	}

	payment := chainPayment()
	hash := txHash.Hex()
	payment.TxHash = &hash

	obs, err := testSource(client).Observe(context.Background(), payment)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs == nil {
		t.Fatal("expected an observation")
	}
	if obs.Confirmations != 10 {
		t.Fatalf("expected 10 confirmations (head 109, block 100), got %d", obs.Confirmations)
	}
	if obs.AmountUnits != 5_000_000 {
		t.Fatalf("expected amount 5000000, got %d", obs.AmountUnits)
	}
	if !strings.EqualFold(obs.Recipient, testRecipient) {
		t.Fatalf("expected recipient %s, got %s", testRecipient, obs.Recipient)
	}
}

func TestObserveReceiptPrefersRecipientLeg(t *testing.T) {
	txHash := common.HexToHash("0x02")
	other := transferLog("0x00000000000000000000000000000000000000dd", 1, 100)
	wanted := transferLog(testRecipient, 5_000_000, 100)
	other.TxHash = txHash
	wanted.TxHash = txHash

	client := &fakeRPC{
		head: 105,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {
				Status: types.ReceiptStatusSuccessful,
				Logs:   []*types.Log{&other, &wanted},
			},
		},
	}

	payment := chainPayment()
	hash := txHash.Hex()
	payment.TxHash = &hash

	obs, err := testSource(client).Observe(context.Background(), payment)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs == nil || !strings.EqualFold(obs.Recipient, testRecipient) {
		t.Fatal("expected the transfer toward the expected recipient")
	}
}

func TestObserveReceiptNotFound(t *testing.T) {
	client := &fakeRPC{head: 100, receipts: map[common.Hash]*types.Receipt{}}

	payment := chainPayment()
	hash := common.HexToHash("0x03").Hex()
	payment.TxHash = &hash

	obs, err := testSource(client).Observe(context.Background(), payment)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs != nil {
		t.Fatal("expected no observation for an unmined tx")
	}
}

func TestObserveFailedReceiptIgnored(t *testing.T) {
	txHash := common.HexToHash("0x04")
	client := &fakeRPC{
		head: 100,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {Status: types.ReceiptStatusFailed},
		},
	}

	payment := chainPayment()
	hash := txHash.Hex()
	payment.TxHash = &hash

	obs, err := testSource(client).Observe(context.Background(), payment)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs != nil {
		t.Fatal("expected no observation from a reverted tx")
	}
}

func TestObserveByScanPrefersAmountMatch(t *testing.T) {
	client := &fakeRPC{
		head: 110,
		logs: []types.Log{
			transferLog(testRecipient, 1_000_000, 100),
			transferLog(testRecipient, 5_000_000, 105),
			transferLog(testRecipient, 9_000_000, 108),
		},
	}

	obs, err := testSource(client).Observe(context.Background(), chainPayment())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs == nil {
		t.Fatal("expected an observation")
	}
	if obs.AmountUnits != 5_000_000 {
		t.Fatalf("expected the amount-matching transfer, got %d", obs.AmountUnits)
	}
	if obs.BlockNumber != 105 {
		t.Fatalf("expected block 105, got %d", obs.BlockNumber)
	}
}

func TestObserveByScanNoMatch(t *testing.T) {
	client := &fakeRPC{head: 110}

	obs, err := testSource(client).Observe(context.Background(), chainPayment())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs != nil {
		t.Fatal("expected no observation without matching transfers")
	}
}

func TestObserveUnsupportedCurrency(t *testing.T) {
	client := &fakeRPC{head: 110}

	payment := chainPayment()
	payment.Currency = entity.CurrencyUSDT

	if _, err := testSource(client).Observe(context.Background(), payment); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestObserveSkipsRemovedLogs(t *testing.T) {
	removed := transferLog(testRecipient, 5_000_000, 100)
	removed.Removed = true

	client := &fakeRPC{head: 110, logs: []types.Log{removed}}

	obs, err := testSource(client).Observe(context.Background(), chainPayment())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs != nil {
		t.Fatal("expected reorged-out logs ignored")
	}
}
