package cowswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/evm-agent/internal/ethereum"
)

// IsNativeAsset reports whether token is the native-asset placeholder,
// ignoring case and checksum.
func IsNativeAsset(token string) bool {
	return strings.EqualFold(token, NativeAsset.Hex())
}

// SetPresignatureTx marks orderUID as signed on the settlement contract.
func SetPresignatureTx(orderUID string) (ethereum.MetaTransaction, error) {
	return ethereum.SetPresignature(Settlement, orderUID)
}

// AllowanceReader reads ERC-20 allowances; *ethereum.Reader implements it.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// SellTokenApprovalTx returns an unlimited approve for the vault relayer when
// owner's current allowance is below sellAmount, and nil when it already
// suffices. A non-token sellToken fails instead of reading as zero.
func SellTokenApprovalTx(ctx context.Context, reader AllowanceReader, owner, sellToken common.Address, sellAmount *big.Int) (*ethereum.MetaTransaction, error) {
	allowance, err := reader.Allowance(ctx, sellToken, owner, VaultRelayer)
	if err != nil {
		return nil, fmt.Errorf("check allowance: %w", err)
	}
	if allowance.Cmp(sellAmount) >= 0 {
		return nil, nil
	}
	tx, err := ethereum.ERC20Approve(sellToken, VaultRelayer, ethereum.MaxUint256)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// AdjustForFee folds the quoted fee into the sell amount and zeroes the fee,
// since presign orders must be submitted with feeAmount "0".
func AdjustForFee(q Quote) (Quote, error) {
	sell, ok := new(big.Int).SetString(q.SellAmount, 10)
	if !ok {
		return Quote{}, fmt.Errorf("quote sellAmount %q is not an integer", q.SellAmount)
	}
	fee := new(big.Int)
	if q.FeeAmount != "" {
		if _, ok := fee.SetString(q.FeeAmount, 10); !ok {
			return Quote{}, fmt.Errorf("quote feeAmount %q is not an integer", q.FeeAmount)
		}
	}
	q.SellAmount = sell.Add(sell, fee).String()
	return q, nil
}

// CreateOrder turns a quote into a submittable presign order for from.
func CreateOrder(resp QuoteResponse, from common.Address) Order {
	q := resp.Quote
	return Order{
		SellToken:         q.SellToken,
		BuyToken:          q.BuyToken,
		Receiver:          q.Receiver,
		SellAmount:        q.SellAmount,
		BuyAmount:         q.BuyAmount,
		ValidTo:           q.ValidTo,
		AppData:           q.AppData,
		FeeAmount:         "0",
		Kind:              q.Kind,
		PartiallyFillable: q.PartiallyFillable,
		SellTokenBalance:  q.SellTokenBalance,
		BuyTokenBalance:   q.BuyTokenBalance,
		SigningScheme:     SchemePresign,
		Signature:         "0x",
		From:              from,
		QuoteID:           resp.ID,
	}
}
