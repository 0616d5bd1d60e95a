package storage

import "fmt"

// Pebble key schema:
//
//	rec:<20-digit-seq> → ledger.Record (JSON)
//
// Sequence numbers are zero-padded so lexicographic key order equals
// insertion order, which is what Replay iterates.
const prefixRecord = "rec:"

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixRecord, seq))
}

func recordPrefix() []byte {
	return []byte(prefixRecord)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
