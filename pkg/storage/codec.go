package storage

import (
	"encoding/json"

	"github.com/danielgvb/betting-app/pkg/ledger"
)

func encodeRecord(r ledger.Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(b []byte) (ledger.Record, error) {
	var r ledger.Record
	err := json.Unmarshal(b, &r)
	return r, err
}
