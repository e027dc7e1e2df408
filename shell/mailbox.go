// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

package shell

import (
	"context"

	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/txexec"
)

// request is a boxed call for the shell's single worker goroutine,
// carrying its own reply channel; this is the SPSC channel model
// spec.md §5 requires ("a single worker thread applies each message in
// order").
type request struct {
	run   func(ctx context.Context, s *Shell)
	reply chan<- struct{}
}

// Mailbox serializes every request onto one goroutine running Shell's
// methods, so callers on other goroutines (an ABCI server handler, a
// metrics scrape, ...) never need their own locking around Shell.
type Mailbox struct {
	shell *Shell
	in    chan request
	done  chan struct{}
}

// NewMailbox starts the worker goroutine for shell with the given
// queue depth.
func NewMailbox(shell *Shell, queueDepth int) *Mailbox {
	m := &Mailbox{shell: shell, in: make(chan request, queueDepth), done: make(chan struct{})}
	go m.run()
	return m
}

func (m *Mailbox) run() {
	defer close(m.done)
	for req := range m.in {
		req.run(context.Background(), m.shell)
		close(req.reply)
	}
}

// Close stops accepting new requests and waits for the worker to
// drain whatever is already queued.
func (m *Mailbox) Close() {
	close(m.in)
	<-m.done
}

func (m *Mailbox) submit(fn func(ctx context.Context, s *Shell)) {
	reply := make(chan struct{})
	m.in <- request{run: fn, reply: reply}
	<-reply
}

// GetInfo is the Mailbox-serialized form of Shell.GetInfo.
func (m *Mailbox) GetInfo() (root storage.MerkleRoot, height storage.BlockHeight, found bool, err error) {
	m.submit(func(_ context.Context, s *Shell) { root, height, found, err = s.GetInfo() })
	return
}

// InitChain is the Mailbox-serialized form of Shell.InitChain.
func (m *Mailbox) InitChain(chainID string) (err error) {
	m.submit(func(_ context.Context, s *Shell) { err = s.InitChain(chainID) })
	return
}

// MempoolValidate is the Mailbox-serialized form of Shell.MempoolValidate.
func (m *Mailbox) MempoolValidate(txBytes []byte, kind MempoolKind) (err error) {
	m.submit(func(_ context.Context, s *Shell) { err = s.MempoolValidate(txBytes, kind) })
	return
}

// BeginBlock is the Mailbox-serialized form of Shell.BeginBlock.
func (m *Mailbox) BeginBlock(hash storage.BlockHash, height storage.BlockHeight) (err error) {
	m.submit(func(_ context.Context, s *Shell) { err = s.BeginBlock(hash, height) })
	return
}

// ApplyTx is the Mailbox-serialized form of Shell.ApplyTx.
func (m *Mailbox) ApplyTx(txBytes []byte) (gasUsed uint64, err error) {
	m.submit(func(ctx context.Context, s *Shell) { gasUsed, err = s.ApplyTx(ctx, txBytes) })
	return
}

// EndBlock is the Mailbox-serialized form of Shell.EndBlock.
func (m *Mailbox) EndBlock(height storage.BlockHeight) (err error) {
	m.submit(func(_ context.Context, s *Shell) { err = s.EndBlock(height) })
	return
}

// CommitBlock is the Mailbox-serialized form of Shell.CommitBlock.
func (m *Mailbox) CommitBlock() (root storage.MerkleRoot, err error) {
	m.submit(func(_ context.Context, s *Shell) { root, err = s.CommitBlock() })
	return
}

// Query is the Mailbox-serialized form of Shell.Query.
func (m *Mailbox) Query(path string, data []byte) (res txexec.TxResult, err error) {
	m.submit(func(ctx context.Context, s *Shell) { res, err = s.Query(ctx, path, data) })
	return
}
