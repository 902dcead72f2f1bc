package onchain

// merge.go: merge on-chain de pares yes+no en colateral USDC.e.
//
//   25 yes + 25 no → 25 USDC.e
//
// Mercados normales: CTF.mergePositions(collateral, 0x0, conditionId, [1,2], amount).
// Mercados neg-risk: NegRiskAdapter.mergePositions(conditionId, amount).

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const (
	polygonChainID = int64(137)

	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	mergeGasLimit    = uint64(200_000)
	approvalGasLimit = uint64(80_000)

	gasPriceTTL      = 5 * time.Minute
	fallbackGasPrice = 30_000_000_000 // 30 gwei

	mergeReceiptTimeout    = 60 * time.Second
	approvalReceiptTimeout = 30 * time.Second
	receiptPollInterval    = 3 * time.Second
)

var (
	ctfABI       abi.ABI
	negRiskABI   abi.ABI
	erc1155ABI   abi.ABI
	erc20ABI     abi.ABI
	maxUint256   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance  = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e
	ctfPartition  = []*big.Int{big.NewInt(1), big.NewInt(2)}
)

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	ctfABI = mustABI("ctf", `[{"name":"mergePositions","type":"function","outputs":[],"inputs":[
		{"name":"collateralToken","type":"address"},
		{"name":"parentCollectionId","type":"bytes32"},
		{"name":"conditionId","type":"bytes32"},
		{"name":"partition","type":"uint256[]"},
		{"name":"amount","type":"uint256"}]}]`)

	negRiskABI = mustABI("neg-risk adapter", `[{"name":"mergePositions","type":"function","outputs":[],"inputs":[
		{"name":"_conditionId","type":"bytes32"},
		{"name":"_amount","type":"uint256"}]}]`)

	erc1155ABI = mustABI("erc1155", `[
		{"name":"setApprovalForAll","type":"function","outputs":[],"inputs":[
			{"name":"operator","type":"address"},{"name":"approved","type":"bool"}]},
		{"name":"isApprovedForAll","type":"function","outputs":[{"name":"","type":"bool"}],"inputs":[
			{"name":"account","type":"address"},{"name":"operator","type":"address"}]}]`)

	erc20ABI = mustABI("erc20", `[
		{"name":"approve","type":"function","outputs":[{"name":"","type":"bool"}],"inputs":[
			{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]},
		{"name":"allowance","type":"function","outputs":[{"name":"","type":"uint256"}],"inputs":[
			{"name":"owner","type":"address"},{"name":"spender","type":"address"}]}]`)
}

// Backend es el subconjunto del RPC de Polygon que usa el merger.
// *ethclient.Client lo implementa.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// MergeClient implementa ports.Merger contra los contratos de Polymarket.
type MergeClient struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer

	// serializa las transacciones para no reutilizar nonces
	txMu sync.Mutex

	mu     sync.RWMutex
	gasWei *big.Int
	gasAt  time.Time
	now    func() time.Time
}

// NewMergeClient conecta con el RPC dado. privateKeyHex va con o sin 0x.
func NewMergeClient(rpcURL, privateKeyHex string) (*MergeClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewMergeClient: dial rpc: %w", err)
	}
	return NewMergeClientWithBackend(client, privateKeyHex)
}

// NewMergeClientWithBackend crea el merger sobre un backend ya conectado.
func NewMergeClientWithBackend(backend Backend, privateKeyHex string) (*MergeClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewMergeClient: invalid private key: %w", err)
	}
	return &MergeClient{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.NewEIP155Signer(big.NewInt(polygonChainID)),
		now:     time.Now,
	}, nil
}

// Address devuelve la dirección que firma las transacciones.
func (mc *MergeClient) Address() string {
	return mc.address.Hex()
}

// MergePositions fusiona amount pares del mercado marketID (condition ID).
// amount se trunca a micro-unidades.
func (mc *MergeClient) MergePositions(ctx context.Context, amount float64, marketID string, negRisk bool) (domain.MergeResult, error) {
	result := domain.MergeResult{
		MarketID:   marketID,
		Amount:     amount,
		ExecutedAt: mc.now().UTC(),
	}
	fail := func(err error) (domain.MergeResult, error) {
		result.Error = err.Error()
		return result, fmt.Errorf("onchain.MergePositions: %w", err)
	}

	cond, err := hexToBytes32(marketID)
	if err != nil {
		return fail(fmt.Errorf("invalid condition id: %w", err))
	}
	units := int64(math.Floor(amount*1_000_000 + 1e-6))
	if units <= 0 {
		return fail(fmt.Errorf("amount %.6f too small", amount))
	}
	amountInt := big.NewInt(units)

	var (
		to       common.Address
		callData []byte
	)
	if negRisk {
		to = common.HexToAddress(negRiskAdapter)
		callData, err = negRiskABI.Pack("mergePositions", cond, amountInt)
	} else {
		to = common.HexToAddress(ctfAddress)
		callData, err = ctfABI.Pack("mergePositions", common.HexToAddress(usdcEAddress), [32]byte{}, cond, ctfPartition, amountInt)
	}
	if err != nil {
		return fail(fmt.Errorf("pack calldata: %w", err))
	}

	tx, gasPrice, err := mc.send(ctx, to, callData, mergeGasLimit, true)
	if err != nil {
		return fail(err)
	}
	result.TxHash = tx.Hash().Hex()
	slog.Info("onchain: merge sent", "market", marketID, "amount", amount, "neg_risk", negRisk, "tx", result.TxHash)

	receiptCtx, cancel := context.WithTimeout(ctx, mergeReceiptTimeout)
	defer cancel()
	receipt, err := mc.waitForReceipt(receiptCtx, tx.Hash())
	if err != nil {
		// enviada pero sin confirmar: la reconciliación corrige si no se minó
		slog.Warn("onchain: merge receipt not confirmed, assuming success", "tx", result.TxHash, "err", err)
		result.Success = true
		result.USDCReceived = amount
		return result, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fail(fmt.Errorf("tx %s reverted", result.TxHash))
	}

	result.Success = true
	result.USDCReceived = float64(units) / 1_000_000
	result.GasUsedPOL = weiToPOL(new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice))

	slog.Info("onchain: merge confirmed",
		"market", marketID,
		"tx", result.TxHash,
		"gas_pol", result.GasUsedPOL,
		"usdc_received", result.USDCReceived,
	)
	return result, nil
}

// EnsureApprovals deja configurados los permisos que necesita el trading:
// setApprovalForAll del CTF para los exchanges y el adapter, y allowance de
// USDC.e para ambos exchanges.
func (mc *MergeClient) EnsureApprovals(ctx context.Context) error {
	ctf := common.HexToAddress(ctfAddress)
	for _, op := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		operator := common.HexToAddress(op)
		approved, err := mc.isApprovedForAll(ctx, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check erc1155 %s: %w", op, err)
		}
		if approved {
			continue
		}
		data, err := erc1155ABI.Pack("setApprovalForAll", operator, true)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: pack: %w", err)
		}
		slog.Info("onchain: setting erc1155 approval", "operator", op)
		if err := mc.sendAndConfirm(ctx, ctf, data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: erc1155 %s: %w", op, err)
		}
	}

	usdc := common.HexToAddress(usdcEAddress)
	for _, ex := range []string{normalExchange, negRiskExchange} {
		spender := common.HexToAddress(ex)
		allowance, err := mc.allowance(ctx, usdc, spender)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check allowance %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			continue
		}
		data, err := erc20ABI.Pack("approve", spender, maxUint256)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: pack: %w", err)
		}
		slog.Info("onchain: setting usdc.e approval", "exchange", ex)
		if err := mc.sendAndConfirm(ctx, usdc, data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: usdc.e %s: %w", ex, err)
		}
	}
	return nil
}

func (mc *MergeClient) sendAndConfirm(ctx context.Context, to common.Address, data []byte) error {
	tx, _, err := mc.send(ctx, to, data, approvalGasLimit, false)
	if err != nil {
		return err
	}
	receiptCtx, cancel := context.WithTimeout(ctx, approvalReceiptTimeout)
	defer cancel()
	receipt, err := mc.waitForReceipt(receiptCtx, tx.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}
	return nil
}

// send firma y envía una transacción legacy EIP-155. Con estimate=true el gas
// se estima (+20%) y gasLimit es el fallback.
func (mc *MergeClient) send(ctx context.Context, to common.Address, data []byte, gasLimit uint64, estimate bool) (*types.Transaction, *big.Int, error) {
	mc.txMu.Lock()
	defer mc.txMu.Unlock()

	nonce, err := mc.backend.PendingNonceAt(ctx, mc.address)
	if err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice := mc.gasPrice(ctx)

	gas := gasLimit
	if estimate {
		est, err := mc.backend.EstimateGas(ctx, ethereum.CallMsg{From: mc.address, To: &to, GasPrice: gasPrice, Data: data})
		if err != nil {
			slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", gasLimit)
		} else {
			gas = est * 12 / 10
		}
	}

	tx, err := types.SignTx(types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data), mc.signer, mc.key)
	if err != nil {
		return nil, nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := mc.backend.SendTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("send tx: %w", err)
	}
	return tx, gasPrice, nil
}

func (mc *MergeClient) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	data, err := erc1155ABI.Pack("isApprovedForAll", mc.address, operator)
	if err != nil {
		return false, err
	}
	ctf := common.HexToAddress(ctfAddress)
	out, err := mc.backend.CallContract(ctx, ethereum.CallMsg{To: &ctf, Data: data}, nil)
	if err != nil {
		return false, err
	}
	vals, err := erc1155ABI.Unpack("isApprovedForAll", out)
	if err != nil || len(vals) == 0 {
		return false, fmt.Errorf("unpack isApprovedForAll: %w", err)
	}
	approved, _ := vals[0].(bool)
	return approved, nil
}

func (mc *MergeClient) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", mc.address, spender)
	if err != nil {
		return nil, err
	}
	out, err := mc.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return big.NewInt(0), nil
	}
	return v, nil
}

// gasPrice devuelve el precio sugerido +10%, cacheado gasPriceTTL.
// Si el RPC falla usa el último valor conocido o 30 gwei.
func (mc *MergeClient) gasPrice(ctx context.Context) *big.Int {
	mc.mu.RLock()
	cached, at := mc.gasWei, mc.gasAt
	mc.mu.RUnlock()

	if cached != nil && mc.now().Sub(at) < gasPriceTTL {
		return cached
	}

	suggested, err := mc.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		return big.NewInt(fallbackGasPrice)
	}
	price := new(big.Int).Mul(suggested, big.NewInt(11))
	price.Div(price, big.NewInt(10))

	mc.mu.Lock()
	mc.gasWei, mc.gasAt = price, mc.now()
	mc.mu.Unlock()
	return price
}

// waitForReceipt consulta el receipt hasta que aparece o vence ctx.
func (mc *MergeClient) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		if receipt, err := mc.backend.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func weiToPOL(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}

// hexToBytes32 convierte un hex con 0x a [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
