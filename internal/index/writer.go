// Package index implements the sorted output writer: it takes a
// completed address dictionary, orders its records deterministically,
// merges each address's per-worker location arrays into one ascending
// sequence, and emits the ADDRESS,COUNT,LINE:FIELD,... record grammar.
// This is a single-pass deterministic serializer rather than a worker
// pool, since output order is the whole point and a worker pool would
// reintroduce the nondeterminism the rest of the design spent its
// effort eliminating.
package index

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/rdilley/lpi/internal/dict"
	"github.com/rdilley/lpi/internal/locarray"
)

// Stats summarizes one WriteSorted call, for the CLI's -d/--debug
// summary line.
type Stats struct {
	AddressesWritten uint64
	LocationsWritten uint64
}

// WriteSorted snapshots d, orders its records by descending total
// count then ascending address, and writes each record's merged,
// ascending-by-(line,field) location list to w.
//
// Output write errors are fatal for this call: the first write
// failure aborts and is returned wrapped.
func WriteSorted(w io.Writer, d *dict.AddressDictionary) (Stats, error) {
	records := d.Snapshot()

	sort.Slice(records, func(i, j int) bool {
		ci, cj := records[i].Data.TotalCount(), records[j].Data.TotalCount()
		if ci != cj {
			return ci > cj
		}
		return records[i].Address < records[j].Address
	})

	bw := bufio.NewWriterSize(w, 1<<20)
	var stats Stats

	for _, rec := range records {
		locs := mergeLocations(rec.Data)
		if err := writeRecord(bw, rec.Address, locs); err != nil {
			return stats, errors.Wrap(err, "index: write failed")
		}
		stats.AddressesWritten++
		stats.LocationsWritten += uint64(len(locs))
	}

	if err := bw.Flush(); err != nil {
		return stats, errors.Wrap(err, "index: flush failed")
	}
	return stats, nil
}

// mergeLocations sorts each of data's per-worker arrays in place, then
// k-way merges them into a single ascending-by-(line,field) sequence.
// The merge, not the per-worker sort order, is what makes output
// independent of goroutine scheduling.
func mergeLocations(data *dict.PerAddressData) []locarray.Location {
	arrays := make([][]locarray.Location, 0, data.MaxThreads())
	for w := 0; w < data.MaxThreads(); w++ {
		arr := data.ThreadArray(w)
		if arr == nil {
			continue
		}
		arr.SortInPlace()
		entries := arr.Entries()
		if len(entries) > 0 {
			arrays = append(arrays, entries)
		}
	}
	return kWayMerge(arrays)
}

// kWayMerge merges N ascending-sorted slices using a simple tournament
// over their current heads; N is bounded by the worker count (at most a
// few dozen), so a heap buys nothing a linear scan doesn't already give.
func kWayMerge(lists [][]locarray.Location) []locarray.Location {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]locarray.Location, 0, total)
	idx := make([]int, len(lists))

	for {
		best := -1
		for li, l := range lists {
			if idx[li] >= len(l) {
				continue
			}
			if best == -1 || less(l[idx[li]], lists[best][idx[best]]) {
				best = li
			}
		}
		if best == -1 {
			break
		}
		out = append(out, lists[best][idx[best]])
		idx[best]++
	}
	return out
}

func less(a, b locarray.Location) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Field < b.Field
}

// writeRecord writes one ADDRESS,COUNT,LINE:FIELD,LINE:FIELD,... line.
func writeRecord(w *bufio.Writer, address string, locs []locarray.Location) error {
	if _, err := w.WriteString(address); err != nil {
		return err
	}
	if err := w.WriteByte(','); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(len(locs))); err != nil {
		return err
	}
	for _, loc := range locs {
		if err := w.WriteByte(','); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d:%d", loc.Line, loc.Field); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
