// Package tokenizer implements the line-to-fields contract the indexing
// engine consumes: split a raw line into up to maxFields whitespace
// fields, then extract every address embedded in each one, tagged with
// the one-byte type the engine cares about ('i', 'I', 'm'). A field
// with no address is left untagged. Field indices are 1-based and
// stable across a line, and shared by every address extracted from the
// same field.
package tokenizer

import "github.com/rdilley/lpi/internal/addrparse"

// maxFields bounds the number of fields extracted from a single line.
const maxFields = 1024

// TagIPv4, TagIPv6, and TagMAC are the one-byte type tags the engine
// consumes; TagOther marks a field the engine ignores.
const (
	TagIPv4  byte = 'i'
	TagIPv6  byte = 'I'
	TagMAC   byte = 'm'
	TagOther byte = 0
)

// Field is one tokenized field: its 1-based position, its tag, and
// (when tagged i/I/m) its canonical address text.
type Field struct {
	Index     int
	Tag       byte
	Canonical string
}

// Options configures tokenization.
type Options struct {
	// Greedy disables quote-aware field boundaries: quote characters
	// are ordinary content rather than field delimiters. Bound to the
	// CLI's -g/--greedy flag.
	Greedy bool
	Parser addrparse.Options
}

// Tokenize splits line into fields and classifies each one, extracting
// every address embedded in a field rather than requiring the field to
// be exactly one address: "[10.0.0.1]", "10.0.0.1:443", and
// "src=10.0.0.1,dst=10.0.0.2" each yield tagged fields, not TagOther.
// A field with no embedded address is returned once with Tag ==
// TagOther so callers can still see its index, though the engine skips
// it; a field with N embedded addresses yields N entries sharing that
// same Index, since they all occupy one field position in the line.
func Tokenize(line []byte, opts Options) []Field {
	raws := splitFields(line, opts.Greedy)
	if len(raws) > maxFields {
		raws = raws[:maxFields]
	}
	out := make([]Field, 0, len(raws))
	for i, raw := range raws {
		index := i + 1
		matches := addrparse.FindAll(raw, opts.Parser)
		if len(matches) == 0 {
			out = append(out, Field{Index: index})
			continue
		}
		for _, m := range matches {
			f := Field{Index: index, Canonical: m.Canonical}
			switch m.Kind {
			case addrparse.KindIPv4:
				f.Tag = TagIPv4
			case addrparse.KindIPv6:
				f.Tag = TagIPv6
			case addrparse.KindMAC:
				f.Tag = TagMAC
			}
			out = append(out, f)
		}
	}
	return out
}

// splitFields scans line for runs of non-whitespace, reslicing the
// input rather than copying. When greedy is false, a double-quoted
// span (even one containing whitespace) counts as a single field.
func splitFields(line []byte, greedy bool) [][]byte {
	var fields [][]byte
	i := 0
	n := len(line)
	for i < n {
		for i < n && isSpace(line[i]) {
			i++
		}
		if i >= n {
			break
		}
		if !greedy && line[i] == '"' {
			start := i + 1
			j := start
			for j < n && line[j] != '"' {
				j++
			}
			fields = append(fields, line[start:j])
			if j < n {
				j++ // skip closing quote
			}
			i = j
			continue
		}
		start := i
		for i < n && !isSpace(line[i]) {
			i++
		}
		fields = append(fields, line[start:i])
	}
	return fields
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}
