package cowswap

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	appDataVersion  = "1.1.0"
	referrerVersion = "0.2.0"
)

// AppData identifies the integration that placed an order. An empty AppCode
// disables app-data upload and orders carry the quote's appData unchanged.
type AppData struct {
	AppCode  string
	Referrer common.Address
}

func (a AppData) Enabled() bool { return a.AppCode != "" }

// Document returns the canonical app-data JSON and its keccak256 hash. Keys
// are emitted in sorted order, which is what the order book hashes.
func (a AppData) Document() (string, common.Hash, error) {
	metadata := map[string]any{}
	if a.Referrer != (common.Address{}) {
		metadata["referrer"] = map[string]any{
			"address": a.Referrer.Hex(),
			"version": referrerVersion,
		}
	}
	doc := map[string]any{
		"appCode":  a.AppCode,
		"metadata": metadata,
		"version":  appDataVersion,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("encode app data: %w", err)
	}
	return string(raw), crypto.Keccak256Hash(raw), nil
}
