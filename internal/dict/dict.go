// Package dict implements the concurrent address dictionary: a map
// from canonical address string to PerAddressData, backed by an
// open-chained hash table sized to a prime from a fixed growth table,
// read under a shared lock and mutated by a single writer under an
// exclusive lock.
package dict

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rdilley/lpi/internal/locarray"
)

// ErrMaxEntriesExceeded is returned by Insert once the dictionary has
// reached its configured entry cap: a fatal, diagnosable condition
// rather than silent unbounded growth.
var ErrMaxEntriesExceeded = errors.New("dict: MAX_ENTRIES exceeded")

// rehashCheckInterval amortizes the load-factor check across many
// inserts rather than paying for it on every one.
const rehashCheckInterval = 4096

// defaultMaxEntries is the distinct-address DoS cap applied when
// Options.MaxEntries is left at zero.
const defaultMaxEntries = 10_000_000_000

// loadFactorThreshold triggers a rehash once exceeded.
const loadFactorThreshold = 0.8

// PerAddressData holds every location a single address was seen at,
// split per worker thread to avoid write contention.
type PerAddressData struct {
	Address string

	totalCount  uint64
	accessCount uint64

	maxThreads           int
	initialArrayCapacity int
	maxArrayCapacity     int
	mu                   sync.Mutex
	threads              []threadLocations
}

type threadLocations struct {
	locations *locarray.Array
	count     uint64
}

func newPerAddressData(address string, maxThreads, initialArrayCapacity, maxArrayCapacity int) *PerAddressData {
	return &PerAddressData{
		Address:              address,
		maxThreads:           maxThreads,
		initialArrayCapacity: initialArrayCapacity,
		maxArrayCapacity:     maxArrayCapacity,
		threads:              make([]threadLocations, maxThreads),
	}
}

// TotalCount returns the sum of per-thread counts, maintained as a
// relaxed atomic for cheap readout during hot-path appends; the
// authoritative total used at output time is re-derived from the
// per-thread arrays' lengths (see index.WriteSorted).
func (p *PerAddressData) TotalCount() uint64 {
	return atomic.LoadUint64(&p.totalCount)
}

// AccessCount is a non-authoritative diagnostic counter bumped on
// every dictionary lookup hit for this address.
func (p *PerAddressData) AccessCount() uint64 {
	return atomic.LoadUint64(&p.accessCount)
}

func (p *PerAddressData) touch() {
	atomic.AddUint64(&p.accessCount, 1)
}

// AppendLocation records (line, field) as seen by workerID. It lazily
// creates that worker's LocationArray on first use.
func (p *PerAddressData) AppendLocation(workerID int, line uint64, field uint16) error {
	arr := p.threadArray(workerID)
	if err := arr.Append(line, field); err != nil {
		return err
	}
	atomic.AddUint64(&p.threads[workerID].count, 1)
	atomic.AddUint64(&p.totalCount, 1)
	return nil
}

func (p *PerAddressData) threadArray(workerID int) *locarray.Array {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.threads[workerID].locations == nil {
		p.threads[workerID].locations = locarray.New(p.initialArrayCapacity, p.maxArrayCapacity)
	}
	return p.threads[workerID].locations
}

// ThreadCount returns the number of locations recorded by workerID.
func (p *PerAddressData) ThreadCount(workerID int) uint64 {
	return atomic.LoadUint64(&p.threads[workerID].count)
}

// ThreadArray returns workerID's LocationArray, or nil if that worker
// never wrote for this address.
func (p *PerAddressData) ThreadArray(workerID int) *locarray.Array {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads[workerID].locations
}

// MaxThreads is the number of per-worker slots this record was
// created with.
func (p *PerAddressData) MaxThreads() int { return p.maxThreads }

type entry struct {
	hash uint32
	key  string
	data *PerAddressData
	next *entry
}

// Options configures a new AddressDictionary.
type Options struct {
	// MaxThreads is the worker pool size; each PerAddressData is
	// created with this many thread slots.
	MaxThreads int
	// InitialArrayCapacity is the starting capacity of each newly
	// created per-thread LocationArray. Zero selects a 64-entry floor.
	InitialArrayCapacity int
	// MaxArrayCapacity is the per-LocationArray hard ceiling.
	MaxArrayCapacity int
	// MaxTableSize is the largest bucket-array prime the dictionary
	// will grow to. Zero selects the largest growth-table entry.
	MaxTableSize uint64
	// MaxEntries is the DoS cap on distinct addresses. Zero selects
	// defaultMaxEntries.
	MaxEntries uint64
}

// AddressDictionary is the concurrent address -> PerAddressData map.
// Lookup takes a shared lock; Insert and Rehash are exclusive and
// intended to be called only from the single writer goroutine.
type AddressDictionary struct {
	mu   sync.RWMutex
	opts Options

	buckets           []*entry
	size              uint64
	totalRecords      uint64
	maxChainDepth     int
	insertsSinceCheck uint64
	rehashCount       uint64
	tableSizeCapped   bool
}

// New creates an empty dictionary sized to the smallest growth-table
// prime.
func New(opts Options) *AddressDictionary {
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = 1
	}
	if opts.MaxArrayCapacity <= 0 {
		opts.MaxArrayCapacity = locarray.DefaultMaxCapacity
	}
	if opts.InitialArrayCapacity <= 0 {
		opts.InitialArrayCapacity = 64
	}
	if opts.MaxTableSize == 0 {
		opts.MaxTableSize = maxTableSize()
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	size := growthTable[0]
	return &AddressDictionary{
		opts:    opts,
		buckets: make([]*entry, size),
		size:    size,
	}
}

// Lookup probes the chain for addr under a shared lock. On a hit it
// opportunistically bumps the record's diagnostic access count.
func (d *AddressDictionary) Lookup(addr string) (*PerAddressData, bool) {
	h := xxhash32(addr)
	d.mu.RLock()
	idx := uint64(h) % d.size
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && e.key == addr {
			data := e.data
			d.mu.RUnlock()
			data.touch()
			return data, true
		}
	}
	d.mu.RUnlock()
	return nil, false
}

// Insert adds addr to the dictionary under the exclusive lock. It
// re-checks for the key before inserting so a race between a worker's
// lookup miss and another worker's concurrent insert resolves onto a
// single record. isNew reports whether a new record was created; when
// false the caller should route its location onto the returned
// (pre-existing) record instead of treating it as a fresh insert.
func (d *AddressDictionary) Insert(addr string) (data *PerAddressData, isNew bool, err error) {
	h := xxhash32(addr)
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := uint64(h) % d.size
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && e.key == addr {
			return e.data, false, nil
		}
	}

	if d.totalRecords >= d.opts.MaxEntries {
		return nil, false, ErrMaxEntriesExceeded
	}

	data = newPerAddressData(addr, d.opts.MaxThreads, d.opts.InitialArrayCapacity, d.opts.MaxArrayCapacity)
	e := &entry{hash: h, key: addr, data: data}
	e.next = d.buckets[idx]
	d.buckets[idx] = e
	d.totalRecords++

	d.insertsSinceCheck++
	if d.insertsSinceCheck >= rehashCheckInterval {
		d.insertsSinceCheck = 0
		d.maybeRehashLocked()
	}

	return data, true, nil
}

// Len returns the number of distinct addresses currently stored.
func (d *AddressDictionary) Len() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalRecords
}

// Size returns the current bucket-array size (always a growth-table
// prime).
func (d *AddressDictionary) Size() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

// RehashCount returns how many times the table has been rehashed.
func (d *AddressDictionary) RehashCount() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rehashCount
}

// MaxChainDepth returns the deepest bucket chain as of the last
// rehash, a diagnostic for hash-quality regressions.
func (d *AddressDictionary) MaxChainDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxChainDepth
}

// Rehash forces an immediate rehash to the next growth-table prime,
// independent of the current load factor. Exposed for tests; nothing
// in the CLI calls it.
func (d *AddressDictionary) Rehash() {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, ok := nextPrime(d.size + 1)
	if !ok {
		log.Warn("dict: MAX_TABLE_SIZE reached, cannot rehash further")
		d.tableSizeCapped = true
		return
	}
	d.rehashLocked(next)
}

func (d *AddressDictionary) maybeRehashLocked() {
	loadFactor := float64(d.totalRecords) / float64(d.size)
	if loadFactor <= loadFactorThreshold {
		return
	}
	next, ok := nextPrime(d.size + 1)
	if !ok {
		if !d.tableSizeCapped {
			log.WithFields(log.Fields{
				"size":       d.size,
				"records":    d.totalRecords,
				"loadFactor": loadFactor,
			}).Warn("dict: MAX_TABLE_SIZE reached, continuing with degraded load factor")
			d.tableSizeCapped = true
		}
		return
	}
	if next > d.opts.MaxTableSize {
		if !d.tableSizeCapped {
			log.WithFields(log.Fields{
				"size":         d.size,
				"wouldGrowTo":  next,
				"maxTableSize": d.opts.MaxTableSize,
			}).Warn("dict: MAX_TABLE_SIZE reached, continuing with degraded load factor")
			d.tableSizeCapped = true
		}
		return
	}
	d.rehashLocked(next)
}

func (d *AddressDictionary) rehashLocked(newSize uint64) {
	newBuckets := make([]*entry, newSize)
	for _, head := range d.buckets {
		for e := head; e != nil; {
			next := e.next
			idx := uint64(e.hash) % newSize
			e.next = newBuckets[idx]
			newBuckets[idx] = e
			e = next
		}
	}

	maxDepth := 0
	for _, head := range newBuckets {
		depth := 0
		for e := head; e != nil; e = e.next {
			depth++
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	oldSize := d.size
	d.buckets = newBuckets
	d.size = newSize
	d.maxChainDepth = maxDepth
	d.rehashCount++

	log.WithFields(log.Fields{
		"from":     oldSize,
		"to":       newSize,
		"records":  d.totalRecords,
		"maxChain": maxDepth,
	}).Info("dict: rehashed")
}

// Record is one entry of a dictionary snapshot, taken at output time.
type Record struct {
	Address string
	Data    *PerAddressData
}

// Snapshot copies out every (address, PerAddressData) pair currently
// in the dictionary under a shared lock. Intended for the sorted
// output writer, which runs after all workers and the writer goroutine
// have exited, so no further mutation races against it.
func (d *AddressDictionary) Snapshot() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Record, 0, d.totalRecords)
	for _, head := range d.buckets {
		for e := head; e != nil; e = e.next {
			out = append(out, Record{Address: e.key, Data: e.data})
		}
	}
	return out
}
