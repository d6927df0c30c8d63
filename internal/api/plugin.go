package api

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
)

//go:embed plugin.json
var pluginTemplate []byte

// pluginManifest fills the deployment URL, agent account and supported chain
// ids into the static OpenAPI document. An empty accountID is left out.
func pluginManifest(serverURL, accountID string, chainIDs []int64) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(pluginTemplate, &doc); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}

	doc["servers"] = []map[string]string{{"url": serverURL}}
	if len(chainIDs) > 0 {
		setEnum(doc, chainIDs, "components", "parameters", "chainId", "schema")
		setEnum(doc, chainIDs, "components", "schemas", "QuoteRequest", "properties", "chainId")
	}
	if accountID != "" {
		mb, _ := doc["x-mb"].(map[string]any)
		if mb == nil {
			mb = map[string]any{}
			doc["x-mb"] = mb
		}
		mb["account-id"] = accountID
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode plugin manifest: %w", err)
	}
	return out, nil
}

// setEnum walks path through nested objects and sets "enum" on the last one.
// A missing step leaves the document unchanged.
func setEnum(doc map[string]any, values []int64, path ...string) {
	node := doc
	for _, key := range path {
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	node["enum"] = values
}

// GET /api/ai-plugin
func (s *Server) handlePlugin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.manifest)
}
