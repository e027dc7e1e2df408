package writelog

// EntryKind distinguishes the four staged-delta shapes a key can carry.
type EntryKind uint8

const (
	// Write stages a new value for a key.
	Write EntryKind = iota
	// Delete stages removal of a key.
	Delete
	// InitAccount stages a freshly generated account's VP bytecode.
	InitAccount
	// Temp stages a value that is visible for the rest of the current
	// transaction only and is discarded at commit_tx/drop_tx time; it
	// never reaches block scope or storage.
	Temp
)

// entry is one staged mutation plus its insertion order, used by
// CommitBlock to apply block-scope entries to storage in insertion
// order regardless of the underlying map's iteration order.
type entry struct {
	kind  EntryKind
	value []byte
	order uint64
}

func (e entry) isTombstone() bool { return e.kind == Delete }
