package record

import (
	"errors"
	"testing"
)

func TestParseAlgorithm(t *testing.T) {
	for _, name := range Algorithms() {
		alg, err := ParseAlgorithm(name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", name, err)
		}
		if string(alg) != name {
			t.Errorf("ParseAlgorithm(%q) = %q", name, alg)
		}
	}

	if _, err := ParseAlgorithm("SHA256"); err != nil {
		t.Errorf("expected case-insensitive parse, got %v", err)
	}

	_, err := ParseAlgorithm("whirlpool")
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestAlgorithmSizes(t *testing.T) {
	sizes := map[Algorithm]int{
		MD5:     16,
		SHA1:    20,
		SHA256:  32,
		SHA512:  64,
		SHA3256: 32,
	}
	for alg, want := range sizes {
		if got := alg.Size(); got != want {
			t.Errorf("%s: Size() = %d, want %d", alg, got, want)
		}
		if got := len(alg.Sum([]byte("x"))); got != want*2 {
			t.Errorf("%s: hex digest length %d, want %d", alg, got, want*2)
		}
	}
}

func TestAlgorithmKnownVectors(t *testing.T) {
	input := []byte("hello")
	vectors := map[Algorithm]Digest{
		MD5:     "5d41402abc4b2a76b9719d911017c592",
		SHA1:    "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		SHA256:  "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		SHA3256: "3338be694f50c5f338814986cdf0686453a888b84f424d792af4b9202398f392",
	}
	for alg, want := range vectors {
		if got := alg.Sum(input); got != want {
			t.Errorf("%s(%q) = %s, want %s", alg, input, got, want)
		}
	}
}

func TestDigestShort(t *testing.T) {
	d := Digest("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if got := d.Short(); got != "2cf24dba5fb0" {
		t.Errorf("Short() = %q", got)
	}
	if got := Digest("abc").Short(); got != "abc" {
		t.Errorf("Short() on short digest = %q", got)
	}
}
