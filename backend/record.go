package backend

// Record is the unit of storage. Data is opaque to the backend; Indexes are name/value pairs the
// record can be queried by.
type Record struct {
	Kind string
	ID   string

	// Version is the version the record was read at, 0 for records that have not been stored yet.
	Version int64

	Data []byte

	Indexes map[string]string
}

type Query struct {
	Index string
	Value string

	// Limit restricts the number of returned records, 0 means no limit.
	Limit int
}

// WriteOp is a buffered write. Backends collect these during a transaction and apply them on commit.
type WriteOp struct {
	Record *Record

	// Delete is set for removals, Record then only carries Kind, ID, and Version.
	Delete bool
}

// Buffer collects the writes of one transaction. Later writes of the same record replace earlier ones.
type Buffer struct {
	ops   []*WriteOp
	index map[string]int
}

func (b *Buffer) Put(r *Record) {
	b.add(&WriteOp{Record: r})
}

func (b *Buffer) Delete(kind, id string, version int64) {
	b.add(&WriteOp{Record: &Record{Kind: kind, ID: id, Version: version}, Delete: true})
}

func (b *Buffer) add(op *WriteOp) {
	if b.index == nil {
		b.index = make(map[string]int)
	}

	key := op.Record.Kind + "/" + op.Record.ID
	if i, ok := b.index[key]; ok {
		b.ops[i] = op
		return
	}

	b.index[key] = len(b.ops)
	b.ops = append(b.ops, op)
}

func (b *Buffer) Ops() []*WriteOp {
	return b.ops
}

func (b *Buffer) Empty() bool {
	return len(b.ops) == 0
}
