package cowswap

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	// NativeAsset is the placeholder address DEX APIs use for the chain's native coin.
	NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
	// Settlement is GPv2Settlement, the same address on every supported chain.
	Settlement = common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	// VaultRelayer is the spender sell tokens must be approved for.
	VaultRelayer = common.HexToAddress("0xC92E8bdf79f0507f65a392b0ab4667716BFE0110")
)

type OrderKind string

const (
	KindSell OrderKind = "sell"
	KindBuy  OrderKind = "buy"
)

type SigningScheme string

const (
	SchemeEIP712  SigningScheme = "eip712"
	SchemeEthSign SigningScheme = "ethsign"
	SchemePresign SigningScheme = "presign"
	SchemeEIP1271 SigningScheme = "eip1271"
)

const (
	BalanceERC20    = "erc20"
	BalanceExternal = "external"
	BalanceInternal = "internal"
)

// QuoteRequest is the body of POST /api/v1/quote for a sell order.
type QuoteRequest struct {
	SellToken           common.Address `json:"sellToken"`
	BuyToken            common.Address `json:"buyToken"`
	Receiver            common.Address `json:"receiver"`
	From                common.Address `json:"from"`
	Kind                OrderKind      `json:"kind"`
	SellAmountBeforeFee string         `json:"sellAmountBeforeFee"`
	SigningScheme       SigningScheme  `json:"signingScheme"`
	AppData             string         `json:"appData,omitempty"`
	SellTokenBalance    string         `json:"sellTokenBalance,omitempty"`
	BuyTokenBalance     string         `json:"buyTokenBalance,omitempty"`
	PriceQuality        string         `json:"priceQuality,omitempty"`
	OnchainOrder        bool           `json:"onchainOrder,omitempty"`
}

// Quote is the order body proposed by the order book.
type Quote struct {
	SellToken         common.Address `json:"sellToken"`
	BuyToken          common.Address `json:"buyToken"`
	Receiver          common.Address `json:"receiver"`
	SellAmount        string         `json:"sellAmount"`
	BuyAmount         string         `json:"buyAmount"`
	ValidTo           uint32         `json:"validTo"`
	AppData           string         `json:"appData"`
	FeeAmount         string         `json:"feeAmount"`
	Kind              OrderKind      `json:"kind"`
	PartiallyFillable bool           `json:"partiallyFillable"`
	SellTokenBalance  string         `json:"sellTokenBalance"`
	BuyTokenBalance   string         `json:"buyTokenBalance"`
	SigningScheme     SigningScheme  `json:"signingScheme"`
}

type QuoteResponse struct {
	Quote      Quote          `json:"quote"`
	From       common.Address `json:"from"`
	Expiration string         `json:"expiration"`
	ID         int64          `json:"id"`
	Verified   bool           `json:"verified"`
}

// Order is the body of POST /api/v1/orders.
type Order struct {
	SellToken         common.Address `json:"sellToken"`
	BuyToken          common.Address `json:"buyToken"`
	Receiver          common.Address `json:"receiver"`
	SellAmount        string         `json:"sellAmount"`
	BuyAmount         string         `json:"buyAmount"`
	ValidTo           uint32         `json:"validTo"`
	AppData           string         `json:"appData"`
	FeeAmount         string         `json:"feeAmount"`
	Kind              OrderKind      `json:"kind"`
	PartiallyFillable bool           `json:"partiallyFillable"`
	SellTokenBalance  string         `json:"sellTokenBalance"`
	BuyTokenBalance   string         `json:"buyTokenBalance"`
	SigningScheme     SigningScheme  `json:"signingScheme"`
	Signature         string         `json:"signature"`
	From              common.Address `json:"from"`
	QuoteID           int64          `json:"quoteId"`
}
