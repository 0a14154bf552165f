package crypto

import (
	"encoding/json"
	"sort"
	"testing"
)

// TestHashing checks that HashBytes and HashAll agree with each other and
// produce stable values.
func TestHashing(t *testing.T) {
	data := []byte("hello, usenet")
	h1 := HashBytes(data)
	h2 := HashAll([]byte("hello, "), []byte("usenet"))
	if h1 != h2 {
		t.Fatal("HashBytes and HashAll disagree on equivalent input")
	}

	// Hashing different data must produce a different hash.
	h3 := HashBytes([]byte("hello, usenet!"))
	if h1 == h3 {
		t.Fatal("different inputs produced the same hash")
	}
}

// TestHashSorting checks that hashes can be sorted.
func TestHashSorting(t *testing.T) {
	// Created an unsorted list of hashes.
	hashes := make(HashSlice, 5)
	for i := range hashes {
		copy(hashes[i][:], RandBytes(HashSize))
	}
	sort.Sort(hashes)
	for i := 1; i < len(hashes); i++ {
		if hashes.Less(i, i-1) {
			t.Fatal("hashes not sorted")
		}
	}
}

// TestHashMarshalling checks that the json marshalling of hashes works as
// expected, and rejects malformed input.
func TestHashMarshalling(t *testing.T) {
	h := HashBytes([]byte("a file worth of bytes"))
	jsonBytes, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}

	var umarH Hash
	err = json.Unmarshal(jsonBytes, &umarH)
	if err != nil {
		t.Fatal(err)
	}
	if h != umarH {
		t.Fatal("encoded and decoded hash do not match")
	}

	// A hex string of the wrong length is rejected.
	err = json.Unmarshal([]byte(`"abcd"`), &umarH)
	if err != ErrHashWrongLen {
		t.Fatal("expected ErrHashWrongLen, got", err)
	}

	// Invalid hex characters are rejected.
	invalid := make([]byte, HashSize*2+2)
	for i := range invalid {
		invalid[i] = 'z'
	}
	invalid[0] = '"'
	invalid[len(invalid)-1] = '"'
	err = json.Unmarshal(invalid, &umarH)
	if err == nil {
		t.Fatal("expected an error when unmarshalling invalid hex")
	}

	// LoadString round trips with String.
	var loaded Hash
	err = loaded.LoadString(h.String())
	if err != nil {
		t.Fatal(err)
	}
	if loaded != h {
		t.Fatal("LoadString did not invert String")
	}
}
