package index

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rdilley/lpi/internal/dict"
)

func TestWriteSortedOrderAndGrammar(t *testing.T) {
	d := dict.New(dict.Options{MaxThreads: 2})

	seed := func(addr string, worker int, locs ...[2]uint64) {
		data, _, err := d.Insert(addr)
		if err != nil {
			t.Fatal(err)
		}
		for _, l := range locs {
			if err := data.AppendLocation(worker, l[0], uint16(l[1])); err != nil {
				t.Fatal(err)
			}
		}
	}

	// "10.0.0.2" appears 3 times (wins on count), "10.0.0.1" twice,
	// "10.0.0.3" once; ties within a count break on address order.
	seed("10.0.0.1", 0, [2]uint64{5, 1}, [2]uint64{2, 3})
	seed("10.0.0.2", 0, [2]uint64{1, 1})
	seed("10.0.0.2", 1, [2]uint64{3, 2}, [2]uint64{3, 1})
	seed("10.0.0.3", 0, [2]uint64{9, 1})

	var buf bytes.Buffer
	stats, err := WriteSorted(&buf, d)
	if err != nil {
		t.Fatalf("WriteSorted: %v", err)
	}
	if stats.AddressesWritten != 3 {
		t.Fatalf("AddressesWritten = %d, want 3", stats.AddressesWritten)
	}
	if stats.LocationsWritten != 6 {
		t.Fatalf("LocationsWritten = %d, want 6", stats.LocationsWritten)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d output lines, want 3:\n%s", len(lines), buf.String())
	}

	want := []string{
		"10.0.0.2,3,1:1,3:1,3:2",
		"10.0.0.1,2,2:3,5:1",
		"10.0.0.3,1,9:1",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestWriteSortedEmptyDictionary(t *testing.T) {
	d := dict.New(dict.Options{MaxThreads: 1})
	var buf bytes.Buffer
	stats, err := WriteSorted(&buf, d)
	if err != nil {
		t.Fatalf("WriteSorted: %v", err)
	}
	if stats.AddressesWritten != 0 || buf.Len() != 0 {
		t.Fatalf("expected empty output, got stats=%+v buf=%q", stats, buf.String())
	}
}
