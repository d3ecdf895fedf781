package attendance

// Cache is the in-memory working set of records for one active query scope.
// It has no network access and no persistence. Callers are responsible for
// serializing access; the sync engine owns one Cache per scope and guards it.
type Cache struct {
	records []Record
	open    []*Snapshot
}

// Snapshot collects the inverse operations of the mutations applied while it
// is open, so a failed remote write can be undone without deep-cloning the
// whole collection on every mutation.
type Snapshot struct {
	ops       []undoOp
	discarded bool
}

type undoOp struct {
	key      Key
	inserted bool   // undo by removal
	prev     Record // undo by replacement when !inserted
}

func NewCache() *Cache {
	return &Cache{}
}

// Find returns the cached record matching key, if any.
func (c *Cache) Find(key Key) (Record, bool) {
	for _, rec := range c.records {
		if rec.Key().Matches(key) {
			return rec, true
		}
	}
	return Record{}, false
}

// UpsertLocal replaces the matching record in place, preserving collection
// order; absent a match the record is prepended (newest first).
func (c *Cache) UpsertLocal(rec Record) {
	key := rec.Key()
	for i := range c.records {
		if c.records[i].Key().Matches(key) {
			c.record(undoOp{key: key, prev: c.records[i]})
			c.records[i] = rec
			return
		}
	}
	c.record(undoOp{key: key, inserted: true})
	c.records = append([]Record{rec}, c.records...)
}

// All returns a copy of the cached records in collection order.
func (c *Cache) All() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Cache) Len() int { return len(c.records) }

// ReplaceAll installs a freshly fetched result set, discarding any
// rollback state: the previous baseline is no longer meaningful. In-flight
// snapshots are marked discarded so a later Restore cannot undo rows that
// the fresh fetch confirmed.
func (c *Cache) ReplaceAll(records []Record) {
	c.records = make([]Record, len(records))
	copy(c.records, records)
	for _, snap := range c.open {
		snap.discarded = true
		snap.ops = nil
	}
	c.open = nil
}

// Snapshot opens a rollback point. Every subsequent mutation records its
// inverse into all open snapshots until they are Released or Restored.
func (c *Cache) Snapshot() *Snapshot {
	snap := &Snapshot{}
	c.open = append(c.open, snap)
	return snap
}

// Restore undoes, newest first, every mutation recorded since snap was taken,
// returning the cache to its exact state at Snapshot time. Undo operations
// are keyed, not indexed, so restoring one call's snapshot cannot corrupt
// another call's concurrent mutations on different identities. Restoring a
// snapshot discarded by ReplaceAll is a no-op: its baseline no longer exists.
func (c *Cache) Restore(snap *Snapshot) {
	if snap.discarded {
		return
	}
	for i := len(snap.ops) - 1; i >= 0; i-- {
		op := snap.ops[i]
		if op.inserted {
			c.remove(op.key)
		} else {
			c.set(op.key, op.prev)
		}
	}
	snap.ops = nil
	c.close(snap)
}

// Release discards snap without undoing anything (the remote write landed;
// the optimistic state is correct).
func (c *Cache) Release(snap *Snapshot) {
	snap.ops = nil
	c.close(snap)
}

func (c *Cache) record(op undoOp) {
	for _, snap := range c.open {
		snap.ops = append(snap.ops, op)
	}
}

func (c *Cache) set(key Key, rec Record) {
	for i := range c.records {
		if c.records[i].Key().Matches(key) {
			c.records[i] = rec
			return
		}
	}
}

func (c *Cache) remove(key Key) {
	for i := range c.records {
		if c.records[i].Key().Matches(key) {
			c.records = append(c.records[:i], c.records[i+1:]...)
			return
		}
	}
}

func (c *Cache) close(snap *Snapshot) {
	for i, open := range c.open {
		if open == snap {
			c.open = append(c.open[:i], c.open[i+1:]...)
			return
		}
	}
}
