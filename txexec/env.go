// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

package txexec

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/event"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/writelog"
)

// txEnv adapts a WriteLog, a BlockMeter and a mutable base-verifier set
// to runner.TxHostEnv for the duration of one TxRunner.Run call.
type txEnv struct {
	wl      *writelog.WriteLog
	meter   *gas.BlockMeter
	base    mapset.Set[address.Address]
	txHash  [32]byte
	counter uint64
}

func (e *txEnv) Read(key address.Key) ([]byte, bool, error) { return e.wl.Read(key) }
func (e *txEnv) HasKey(key address.Key) (bool, error)        { return e.wl.HasKey(key) }
func (e *txEnv) Write(key address.Key, value []byte)         { e.wl.Write(key, value) }
func (e *txEnv) Delete(key address.Key)                      { e.wl.Delete(key) }

func (e *txEnv) InitAccount(vp []byte) address.Address {
	addr := e.wl.InitAccount(e.txHash, e.counter, vp)
	e.counter++
	e.base.Add(addr)
	return addr
}

func (e *txEnv) EmitEvent(ev event.Event) error {
	cost := e.wl.EmitEvent(ev)
	return e.meter.Add(cost)
}

func (e *txEnv) InsertVerifier(addr address.Address) { e.base.Add(addr) }

func (e *txEnv) ChargeGas(amount uint64) error { return e.meter.Add(amount) }
