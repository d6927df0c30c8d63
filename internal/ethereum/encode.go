package ethereum

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrInvalidAbiOrArgs = errors.New("invalid ABI fragment or arguments")

// EncodeCall produces calldata for a single function. The fragment is either a
// human-readable signature ("function transfer(address to, uint256 amount)")
// or a JSON ABI entry; args are the flat string arguments in declaration order.
func EncodeCall(functionName, fragment string, args []string) ([]byte, error) {
	parsed, err := parseFragment(fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAbiOrArgs, err)
	}
	method, ok := parsed.Methods[functionName]
	if !ok {
		return nil, fmt.Errorf("%w: function %q not found in fragment", ErrInvalidAbiOrArgs, functionName)
	}
	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d",
			ErrInvalidAbiOrArgs, functionName, len(method.Inputs), len(args))
	}

	values := make([]any, len(args))
	for i, in := range method.Inputs {
		v, err := convertArg(in.Type, strings.TrimSpace(args[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d (%s): %v", ErrInvalidAbiOrArgs, i, in.Type.String(), err)
		}
		values[i] = v
	}

	data, err := parsed.Pack(functionName, values...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAbiOrArgs, err)
	}
	return data, nil
}

// SplitCallParams turns the comma separated query form into an argument list.
// An empty string means no arguments.
func SplitCallParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return parts
}

func parseFragment(fragment string) (abi.ABI, error) {
	fragment = strings.TrimSpace(fragment)
	switch {
	case strings.HasPrefix(fragment, "["):
		return abi.JSON(strings.NewReader(fragment))
	case strings.HasPrefix(fragment, "{"):
		return abi.JSON(strings.NewReader("[" + fragment + "]"))
	}

	selector, err := normalizeSignature(fragment)
	if err != nil {
		return abi.ABI{}, err
	}
	sel, err := abi.ParseSelector(selector)
	if err != nil {
		return abi.ABI{}, err
	}
	raw, err := json.Marshal([]abi.SelectorMarshaling{sel})
	if err != nil {
		return abi.ABI{}, err
	}
	return abi.JSON(strings.NewReader(string(raw)))
}

// normalizeSignature strips the "function" keyword, parameter names, data
// locations and trailing modifiers, leaving "name(type1,type2)".
func normalizeSignature(sig string) (string, error) {
	sig = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sig), "function "))
	open := strings.Index(sig, "(")
	if open <= 0 {
		return "", fmt.Errorf("malformed signature %q", sig)
	}
	name := strings.TrimSpace(sig[:open])
	closeIdx := matchingParen(sig, open)
	if closeIdx < 0 {
		return "", fmt.Errorf("unbalanced parentheses in %q", sig)
	}
	params, err := normalizeParams(sig[open+1 : closeIdx])
	if err != nil {
		return "", err
	}
	return name + "(" + params + ")", nil
}

func normalizeParams(list string) (string, error) {
	if strings.TrimSpace(list) == "" {
		return "", nil
	}
	var types []string
	for _, param := range splitTopLevel(list) {
		param = strings.TrimSpace(param)
		if param == "" {
			return "", fmt.Errorf("empty parameter")
		}
		var typ string
		if strings.HasPrefix(param, "(") {
			end := matchingParen(param, 0)
			if end < 0 {
				return "", fmt.Errorf("unbalanced tuple in %q", param)
			}
			inner, err := normalizeParams(param[1:end])
			if err != nil {
				return "", err
			}
			// keep array suffixes such as "[]" or "[2]"
			rest := param[end+1:]
			suffix := rest
			if i := strings.IndexAny(rest, " \t"); i >= 0 {
				suffix = rest[:i]
			}
			typ = "(" + inner + ")" + suffix
		} else {
			typ = strings.Fields(param)[0]
			if strings.HasPrefix(typ, "tuple") {
				return "", fmt.Errorf("tuple parameters must use parenthesised form")
			}
		}
		types = append(types, typ)
	}
	return strings.Join(types, ","), nil
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func convertArg(t abi.Type, raw string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit bytes%d", len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.IntTy, abi.UintTy:
		return convertInteger(t, raw)
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

func convertInteger(t abi.Type, raw string) (any, error) {
	n, ok := new(big.Int).SetString(raw, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s out of range for uint%d", raw, t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s out of range for int%d", raw, t.Size)
		}
	}
	// go-ethereum only uses native ints for 8/16/32/64-bit widths
	if t.GetType().Kind() == reflect.Ptr {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(t.GetType()).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(t.GetType()).Interface(), nil
}
