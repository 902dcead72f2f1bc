package polymarket

// auth.go: cliente autenticado del CLOB.
//
//   L1: firma EIP-712 (ClobAuth) con la clave de la wallet → credenciales API
//   L2: HMAC-SHA256 de cada request autenticada

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	// taker cero = orden pública
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// Credentials son las credenciales API del CLOB derivadas de la wallet.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthClient añade autenticación L1/L2 y firma de órdenes al Client.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	funder       common.Address // == address salvo que se opere vía proxy/safe
	orderBuilder builder.ExchangeOrderBuilder

	mu    sync.Mutex
	creds *Credentials
}

// NewAuthClient crea el cliente autenticado. privateKeyHex va sin prefijo 0x.
// funder es la dirección que custodia los fondos; vacía → la propia wallet.
func NewAuthClient(clobBase, dataBase, privateKeyHex, funder string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("polymarket.NewAuthClient: invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	funderAddr := addr
	if funder != "" {
		if !common.IsHexAddress(funder) {
			return nil, fmt.Errorf("polymarket.NewAuthClient: invalid funder address %q", funder)
		}
		funderAddr = common.HexToAddress(funder)
	}

	return &AuthClient{
		Client:       NewClient(clobBase, dataBase),
		privateKey:   key,
		address:      addr,
		funder:       funderAddr,
		orderBuilder: builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address devuelve la dirección de la wallet firmante.
func (ac *AuthClient) Address() string {
	return ac.address.Hex()
}

// Funder devuelve la dirección dueña de posiciones y órdenes.
func (ac *AuthClient) Funder() string {
	return ac.funder.Hex()
}

// EnsureCreds deriva las credenciales API vía L1. Quedan cacheadas.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	_, err := ac.Credentials(ctx)
	return err
}

// Credentials devuelve las credenciales API, derivándolas si hace falta.
func (ac *AuthClient) Credentials(ctx context.Context) (Credentials, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds != nil {
		return *ac.creds, nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, "0")
	if err != nil {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", ac.address.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: derive-api-key: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: derive-api-key status %d: %s", resp.StatusCode, body)
	}

	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: parse: %w", err)
	}
	if creds.APIKey == "" {
		return Credentials{}, fmt.Errorf("polymarket.Credentials: empty api key")
	}
	ac.creds = &creds
	return creds, nil
}

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth firma el typed data ClobAuth para L1.
func (ac *AuthClient) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator().Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)

	sig, err := crypto.Sign(crypto.Keccak256Hash(rawBuf).Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("0x%x", sig), nil
}

// l2Headers devuelve las cabeceras HMAC de una llamada L2.
func (ac *AuthClient) l2Headers(creds Credentials, method, path, body string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secret, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))

	return map[string]string{
		"POLY_ADDRESS":    ac.address.Hex(),
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// doL2 ejecuta una request L2. Las cabeceras se regeneran en cada intento
// para que el timestamp no caduque entre reintentos. path incluye la query.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	creds, err := ac.Credentials(ctx)
	if err != nil {
		return err
	}

	var bodyStr string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyStr = string(b)
	}

	limiter := ac.clobLimiter
	if method != http.MethodGet {
		limiter = ac.tradingLimiter
	}
	signPath := path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		signPath = path[:i]
	}

	return ac.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		headers, err := ac.l2Headers(creds, method, signPath, bodyStr)
		if err != nil {
			return nil, err
		}
		var body io.Reader
		if bodyStr != "" {
			body = strings.NewReader(bodyStr)
		}
		req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return ac.http.Do(req)
	}, out)
}

// buildSignedOrder firma una orden límite de size shares a price.
//
// Aritmética entera: el CLOB exige makerAmount == price·takerAmount exacto.
// BUY entrega USDC y recibe shares; SELL entrega shares y recibe USDC.
func (ac *AuthClient) buildSignedOrder(tokenID string, side domain.Side, price, size float64, negRisk bool) (*gomodel.SignedOrder, error) {
	prec := detectPricePrecision(price)
	priceInt := int64(math.Round(price * float64(prec)))
	sharesCents := int64(math.Floor(size*100 + 1e-9))

	usdc := sharesCents * priceInt * (int64(1_000_000) / (100 * prec))
	shares := sharesCents * 10_000

	if usdc <= 0 || shares <= 0 {
		return nil, fmt.Errorf("invalid amounts: usdc=%d shares=%d (price=%.4f size=%.4f)", usdc, shares, price, size)
	}

	makerAmount, takerAmount := usdc, shares
	var orderSide gomodel.Side = gomodel.BUY
	if side == domain.Sell {
		makerAmount, takerAmount = shares, usdc
		orderSide = gomodel.SELL
	}

	var verifying gomodel.VerifyingContract = gomodel.CTFExchange
	if negRisk {
		verifying = gomodel.NegRiskCTFExchange
	}

	var sigType gomodel.SignatureType = gomodel.EOA
	if ac.funder != ac.address {
		sigType = gomodel.POLY_GNOSIS_SAFE
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, &gomodel.OrderData{
		Maker:         ac.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          orderSide,
		SignatureType: sigType,
	}, verifying)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// detectPricePrecision devuelve el multiplicador del tick del precio.
// 0.60 → 100 (tick 0.01), 0.673 → 1000 (tick 0.001).
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
