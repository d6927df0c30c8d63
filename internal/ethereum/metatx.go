package ethereum

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxUint256 is the amount used for unlimited ERC-20 approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var (
	ErrInvalidOrderUID   = errors.New("Invalid OrderUid (not hex)")
	ErrOddLengthOrderUID = errors.New("Invalid OrderUid (odd length)")
)

var hexRegexp = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

// MetaTransaction is an unsigned unit of on-chain intent. Builders always
// return fresh values; nothing mutates a MetaTransaction after construction.
type MetaTransaction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// MarshalJSON renders the transaction the way wallets expect it: hex value and data.
func (tx MetaTransaction) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"to":%q,"value":%q,"data":%q}`,
		tx.To.Hex(), tx.ValueHex(), hexutil.Encode(tx.Data))), nil
}

func (tx MetaTransaction) ValueHex() string {
	if tx.Value == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(tx.Value)
}

func (tx MetaTransaction) DataHex() string {
	return hexutil.Encode(tx.Data)
}

// WrapDeposit calls deposit() on the wrapped-native contract, sending amount as value.
func WrapDeposit(weth common.Address, amount *big.Int) MetaTransaction {
	data, _ := wethABI.Pack("deposit")
	return MetaTransaction{To: weth, Value: new(big.Int).Set(amount), Data: data}
}

// UnwrapWithdraw calls withdraw(amount) on the wrapped-native contract.
func UnwrapWithdraw(weth common.Address, amount *big.Int) (MetaTransaction, error) {
	data, err := wethABI.Pack("withdraw", amount)
	if err != nil {
		return MetaTransaction{}, fmt.Errorf("pack withdraw: %w", err)
	}
	return MetaTransaction{To: weth, Value: big.NewInt(0), Data: data}, nil
}

// ERC20Transfer encodes transfer(recipient, amount); amount is already in the
// token's smallest unit.
func ERC20Transfer(token, recipient common.Address, amount *big.Int) (MetaTransaction, error) {
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return MetaTransaction{}, fmt.Errorf("pack transfer: %w", err)
	}
	return MetaTransaction{To: token, Value: big.NewInt(0), Data: data}, nil
}

func ERC20Approve(token, spender common.Address, amount *big.Int) (MetaTransaction, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return MetaTransaction{}, fmt.Errorf("pack approve: %w", err)
	}
	return MetaTransaction{To: token, Value: big.NewInt(0), Data: data}, nil
}

// SetPresignature encodes setPreSignature(orderUid, true) against the settlement
// contract. The uid is checked before anything else so bad input never costs a
// network round trip.
func SetPresignature(settlement common.Address, orderUID string) (MetaTransaction, error) {
	if !hexRegexp.MatchString(orderUID) {
		return MetaTransaction{}, fmt.Errorf("%w: %s", ErrInvalidOrderUID, orderUID)
	}
	if len(orderUID)%2 != 0 {
		return MetaTransaction{}, fmt.Errorf("%w: %s", ErrOddLengthOrderUID, orderUID)
	}
	uid, err := hexutil.Decode(orderUID)
	if err != nil {
		return MetaTransaction{}, fmt.Errorf("%w: %s", ErrInvalidOrderUID, orderUID)
	}
	data, err := settlementABI.Pack("setPreSignature", uid, true)
	if err != nil {
		return MetaTransaction{}, fmt.Errorf("pack setPreSignature: %w", err)
	}
	return MetaTransaction{To: settlement, Value: big.NewInt(0), Data: data}, nil
}
