package cowswap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc/pool"

	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/tokens"
	"github.com/kjannette/evm-agent/internal/validate"
)

// TokenResolver turns a symbol or address into a token; *tokens.Registry implements it.
type TokenResolver interface {
	Lookup(ctx context.Context, chainID int64, symbolOrAddress string) (tokens.Info, error)
}

// ParsedQuoteRequest is a validated swap request with tokens resolved and the
// sell amount in base units.
type ParsedQuoteRequest struct {
	ChainID int64
	Quote   QuoteRequest

	// As given by the caller, for logs and notifications.
	SellSymbol   string
	BuySymbol    string
	SellAmount   string
	SellDecimals int
}

// ParseQuoteRequest validates {sellToken, buyToken, chainId,
// sellAmountBeforeFee, from}. Both tokens are resolved concurrently; either
// failing fails the request.
func ParseQuoteRequest(ctx context.Context, body validate.Source, resolver TokenResolver) (ParsedQuoteRequest, error) {
	var (
		sellToken, buyToken string
		chainID             int64
		amount              string
		from                common.Address
	)
	schema := validate.Schema{
		validate.String("sellToken", &sellToken),
		validate.String("buyToken", &buyToken),
		validate.Int("chainId", &chainID),
		validate.Custom("sellAmountBeforeFee", &amount, func(raw string) (string, error) {
			if _, err := ethereum.ParseUnits(raw, 0); err != nil {
				return "", errors.New("not a decimal number")
			}
			return raw, nil
		}),
		validate.Address("from", &from),
	}
	if err := schema.Validate(body); err != nil {
		return ParsedQuoteRequest{}, err
	}

	var sell, buy tokens.Info
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		if IsNativeAsset(sellToken) {
			// rejected by the flow; there is no contract to read decimals from
			sell = tokens.Info{Address: NativeAsset, Decimals: 18}
			return nil
		}
		info, err := resolver.Lookup(ctx, chainID, sellToken)
		if err != nil {
			return fmt.Errorf("sellToken %s: %w", sellToken, err)
		}
		sell = info
		return nil
	})
	p.Go(func(ctx context.Context) error {
		info, err := resolver.Lookup(ctx, chainID, buyToken)
		if err != nil {
			return fmt.Errorf("buyToken %s: %w", buyToken, err)
		}
		buy = info
		return nil
	})
	if err := p.Wait(); err != nil {
		return ParsedQuoteRequest{}, err
	}

	units, err := ethereum.ParseUnits(amount, sell.Decimals)
	if err != nil {
		return ParsedQuoteRequest{}, fmt.Errorf("sellAmountBeforeFee: %w", err)
	}
	if units.Sign() <= 0 {
		return ParsedQuoteRequest{}, &validate.Error{Field: "sellAmountBeforeFee", Kind: validate.InvalidValue, Reason: "must be positive"}
	}

	return ParsedQuoteRequest{
		ChainID: chainID,
		Quote: QuoteRequest{
			SellToken:           sell.Address,
			BuyToken:            buy.Address,
			Receiver:            from,
			From:                from,
			Kind:                KindSell,
			SellAmountBeforeFee: units.String(),
			SigningScheme:       SchemePresign,
		},
		SellSymbol:   sellToken,
		BuySymbol:    buyToken,
		SellAmount:   amount,
		SellDecimals: sell.Decimals,
	}, nil
}
