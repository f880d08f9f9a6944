// Package cache implements the named cache stores the offline worker reads
// and writes. A Storage owns every store under StoragePath/<cache-name>/ and
// each entry is persisted as a pair of files: <key>.body holds the raw
// response payload and <key>.meta holds status, headers and bookkeeping as
// JSON. Writes go through a temp file + rename so readers never observe a
// half-written entry. A bounded LRU keeps recently matched records in memory.
// Stores are only ever evicted as a whole, via Storage.Delete.
package cache
