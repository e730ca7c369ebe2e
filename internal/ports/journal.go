package ports

type JournalEntryID uint64

// Journal keeps raw BulkData payloads in arrival order.
type Journal interface {
	Append(payload []byte) (JournalEntryID, error)
	Latest() (JournalEntryID, []byte, error)
	Stats() JournalStats
	Close() error
}

type JournalStats struct {
	Entries        uint64
	LatestAppended JournalEntryID
	SizeBytes      int64
}
