// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

package txexec

import "crypto/sha256"

// Tx is the decoded transaction envelope run_tx operates on: opaque
// code (the bytecode the TxRunner evaluates) plus an opaque data blob
// the code may interpret however it wishes.
type Tx struct {
	Code []byte
	Data []byte
}

// Hash returns the transaction's content hash, the seed for any
// InitAccount address derivation performed while running it.
func (t Tx) Hash() [32]byte {
	h := sha256.New()
	h.Write(t.Code)
	h.Write(t.Data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
