package dict

import "testing"

func TestNextPrimeMonotonic(t *testing.T) {
	p, ok := nextPrime(100)
	if !ok {
		t.Fatal("nextPrime(100) should find an entry in the growth table")
	}
	if p <= 100 {
		t.Fatalf("nextPrime(100) = %d, want > 100", p)
	}
}

func TestNextPrimeExhaustsTable(t *testing.T) {
	_, ok := nextPrime(maxTableSize() + 1)
	if ok {
		t.Fatal("nextPrime should report exhaustion past the largest table entry")
	}
}
