package dict

// growthTable is the fixed sequence of primes the dictionary's bucket
// array grows through, each roughly doubling the last. The table tops
// out just over 1.6 billion, sized for a modern in-memory table.
var growthTable = []uint64{
	53, 97, 193, 389, 769, 1543, 3079, 6151, 12289, 24593,
	49157, 98317, 196613, 393241, 786433, 1572869, 3145739,
	6291469, 12582917, 25165843, 50331653, 100663319, 201326611,
	402653189, 805306457, 1610612741,
}

// nextPrime returns the smallest growth-table prime >= n, and the
// largest table entry (along with false) if n exceeds every entry.
func nextPrime(n uint64) (uint64, bool) {
	for _, p := range growthTable {
		if p >= n {
			return p, true
		}
	}
	return growthTable[len(growthTable)-1], false
}

// maxTableSize is the largest prime the dictionary will ever grow to.
func maxTableSize() uint64 {
	return growthTable[len(growthTable)-1]
}
