package checksum

import (
	"strings"
	"testing"
)

func TestSum_KnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum(abc) = %s, want %s", got, want)
	}
}

func TestForAlgorithm_PrefixesDigest(t *testing.T) {
	for _, algo := range []string{SHA256, BLAKE3} {
		fn, err := ForAlgorithm(algo)
		if err != nil {
			t.Fatalf("ForAlgorithm(%q): %v", algo, err)
		}
		got := fn([]byte("note body"))
		if !strings.HasPrefix(got, algo+":") {
			t.Errorf("%s digest %q missing prefix", algo, got)
		}
		if got != fn([]byte("note body")) {
			t.Errorf("%s digest not stable", algo)
		}
	}
}

func TestForAlgorithm_AlgorithmsDiffer(t *testing.T) {
	s, _ := ForAlgorithm(SHA256)
	b, _ := ForAlgorithm(BLAKE3)
	if s([]byte("x")) == b([]byte("x")) {
		t.Error("sha256 and blake3 digests must not compare equal")
	}
}

func TestForAlgorithm_Unknown(t *testing.T) {
	if _, err := ForAlgorithm("md5"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
