package badger

// Key layout
//
//	r:<entryID>:<recordKey>  ->  index.Entry (JSON)
//
// Keys of one entry share the "r:<entryID>:" prefix, so ListByStatus is a
// prefix scan and iteration order is the record key order. Entry IDs never
// contain ':' (they are numeric accession codes) and record keys may, since
// only the first separator after the entry ID is significant.

const prefixRecord = "r:"

func keyRecord(entryID, key string) []byte {
	return []byte(prefixRecord + entryID + ":" + key)
}

func keyRecordPrefix(entryID string) []byte {
	return []byte(prefixRecord + entryID + ":")
}
