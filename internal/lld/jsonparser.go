package lld

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DiscoveryRow is an opaque handle onto one element of the discovery
// payload's "data" array: a bag of named macros such as {#VMNAME}.
type DiscoveryRow map[string]string

// DiscoveryParser iterates the "data" array of a discovery payload,
// yielding one DiscoveryRow per object-shaped element. Elements that are
// not JSON objects are silently skipped, mirroring zbx_json_brackets_open.
type DiscoveryParser interface {
	Parse(payload []byte) ([]DiscoveryRow, error)
}

type jsonParser struct{}

// NewJSONParser returns the default DiscoveryParser, decoding with
// goccy/go-json for throughput on large discovery batches.
func NewJSONParser() DiscoveryParser { return jsonParser{} }

type discoveryDocument struct {
	Data []json.RawMessage `json:"data"`
}

func (jsonParser) Parse(payload []byte) ([]DiscoveryRow, error) {
	var doc discoveryDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse discovery payload: %w", err)
	}

	rows := make([]DiscoveryRow, 0, len(doc.Data))
	for _, raw := range doc.Data {
		var row DiscoveryRow
		if err := json.Unmarshal(raw, &row); err != nil || row == nil {
			// Not an object literal ({"data":["x"]}, null, or similar) — skip,
			// matching zbx_json_brackets_open's FAIL path.
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
