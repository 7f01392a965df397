package tokenizer

import "testing"

func TestTokenizeClassifiesFields(t *testing.T) {
	line := []byte(`Jan 1 host sshd[123]: Accepted from 10.0.0.1 mac=00:11:22:33:44:55 src=fe80::1`)
	fields := Tokenize(line, Options{})

	var ipv4, mac, ipv6 int
	for _, f := range fields {
		switch f.Tag {
		case TagIPv4:
			ipv4++
			if f.Canonical != "10.0.0.1" {
				t.Errorf("ipv4 canonical = %q", f.Canonical)
			}
		case TagMAC:
			mac++
		case TagIPv6:
			ipv6++
		}
	}
	if ipv4 != 1 || mac != 1 || ipv6 != 1 {
		t.Fatalf("got ipv4=%d mac=%d ipv6=%d, want 1 each", ipv4, mac, ipv6)
	}
}

func TestTokenizeFieldIndicesAreOneBasedAndStable(t *testing.T) {
	line := []byte("a b c")
	fields := Tokenize(line, Options{})
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}
	for i, f := range fields {
		if f.Index != i+1 {
			t.Errorf("field %d has Index %d, want %d", i, f.Index, i+1)
		}
	}
}

func TestTokenizeQuotedFieldNotGreedy(t *testing.T) {
	line := []byte(`first "hello world" last`)
	fields := Tokenize(line, Options{Greedy: false})
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3 (quoted span is one field): %+v", len(fields), fields)
	}
}

func TestTokenizeQuotedFieldEmbeddedAddressesShareOneIndex(t *testing.T) {
	line := []byte(`first "10.0.0.1 10.0.0.2" last`)
	fields := Tokenize(line, Options{Greedy: false})
	var matched []Field
	for _, f := range fields {
		if f.Tag != TagOther {
			matched = append(matched, f)
		}
	}
	if len(matched) != 2 {
		t.Fatalf("got %d tagged fields, want 2 embedded addresses: %+v", len(matched), matched)
	}
	if matched[0].Index != matched[1].Index {
		t.Fatalf("embedded addresses got different indices %d, %d; want same (one field position)",
			matched[0].Index, matched[1].Index)
	}
	if matched[0].Canonical != "10.0.0.1" || matched[1].Canonical != "10.0.0.2" {
		t.Fatalf("got canonicals %q, %q", matched[0].Canonical, matched[1].Canonical)
	}
}

func TestTokenizePunctuationWrappedAddressStillTagged(t *testing.T) {
	for _, line := range [][]byte{
		[]byte(`conn from [10.0.0.1] accepted`),
		[]byte(`dst=10.0.0.1:443 allowed`),
		[]byte(`src=10.0.0.1,dst=10.0.0.2`),
	} {
		fields := Tokenize(line, Options{})
		found := false
		for _, f := range fields {
			if f.Tag == TagIPv4 && f.Canonical == "10.0.0.1" {
				found = true
			}
		}
		if !found {
			t.Errorf("line %q: expected an embedded 10.0.0.1 to be tagged, fields=%+v", line, fields)
		}
	}
}

func TestTokenizeGreedyIgnoresQuotes(t *testing.T) {
	line := []byte(`first "10.0.0.1 10.0.0.2" last`)
	fields := Tokenize(line, Options{Greedy: true})
	// Greedy mode splits purely on whitespace: `"10.0.0.1`, `10.0.0.2"`, etc.
	if len(fields) != 4 {
		t.Fatalf("got %d fields, want 4: %+v", len(fields), fields)
	}
}

func TestTokenizeEmptyLine(t *testing.T) {
	fields := Tokenize([]byte(""), Options{})
	if len(fields) != 0 {
		t.Fatalf("got %d fields for empty line, want 0", len(fields))
	}
}

func TestTokenizeFieldCap(t *testing.T) {
	line := make([]byte, 0, maxFields*2*2)
	for i := 0; i < maxFields+10; i++ {
		line = append(line, 'x', ' ')
	}
	fields := Tokenize(line, Options{})
	if len(fields) != maxFields {
		t.Fatalf("got %d fields, want capped at %d", len(fields), maxFields)
	}
}
