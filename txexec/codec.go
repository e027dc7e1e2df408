// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

package txexec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeTx renders tx to its wire form. The original Rust shell this
// core is modeled on frames Tx with protobuf (via prost); hand-writing
// a .pb.go by hand without running protoc would be a fragile stand-in
// for a real generated file, so the envelope is gob-encoded instead —
// see DESIGN.md. The tx envelope is an application payload, not a
// consensus wire message, so this choice is internal to this core.
func EncodeTx(tx Tx) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tx); err != nil {
		return nil, fmt.Errorf("txexec: encoding tx: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTx is the inverse of EncodeTx; per spec step 2 of run_tx, a
// decode failure is fatal to the transaction (surfaced to the caller,
// never silently swallowed).
func DecodeTx(txBytes []byte) (Tx, error) {
	var tx Tx
	if err := gob.NewDecoder(bytes.NewReader(txBytes)).Decode(&tx); err != nil {
		return Tx{}, fmt.Errorf("txexec: decoding tx: %w", err)
	}
	return tx, nil
}
