package synthesis

import (
	"testing"
	"time"

	"docsynth/internal/models"
)

func doc(id string, updatedAt time.Time) models.SourceDocument {
	return models.SourceDocument{ID: id, Content: "x", UpdatedAt: updatedAt}
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	t1 := baseTime
	t2 := baseTime.Add(time.Minute)
	for _, alg := range []string{AlgorithmSHA256, AlgorithmRolling31} {
		fp, err := NewFingerprinter(alg)
		if err != nil {
			t.Fatalf("NewFingerprinter(%s): %v", alg, err)
		}
		a := fp.Fingerprint([]models.SourceDocument{doc("a", t1)})
		ab := fp.Fingerprint([]models.SourceDocument{doc("a", t1), doc("b", t2)})
		ba := fp.Fingerprint([]models.SourceDocument{doc("b", t2), doc("a", t1)})
		if a == ba {
			t.Fatalf("%s: [a] and [b,a] must differ", alg)
		}
		if ab != ba {
			t.Fatalf("%s: [a,b] and [b,a] must match: %s vs %s", alg, ab, ba)
		}
		touched := fp.Fingerprint([]models.SourceDocument{doc("a", t1.Add(time.Nanosecond)), doc("b", t2)})
		if touched == ab {
			t.Fatalf("%s: changing updatedAt must change the fingerprint", alg)
		}
	}
}

func TestFingerprintIgnoresTimeZone(t *testing.T) {
	fp, _ := NewFingerprinter("")
	local := baseTime.In(time.FixedZone("UTC+2", 2*60*60))
	if fp.Fingerprint([]models.SourceDocument{doc("a", baseTime)}) != fp.Fingerprint([]models.SourceDocument{doc("a", local)}) {
		t.Fatalf("same instant in another zone must fingerprint the same")
	}
	if fp.Algorithm() != AlgorithmSHA256 {
		t.Fatalf("default algorithm should be sha256, got %s", fp.Algorithm())
	}
}

func TestRolling31(t *testing.T) {
	cases := map[string]string{
		"":   "0",
		"a":  "61",
		"ab": "c21", // 97*31 + 98
	}
	for in, want := range cases {
		if got := rolling31(in); got != want {
			t.Fatalf("rolling31(%q) = %s, want %s", in, got, want)
		}
	}
	// long inputs wrap but stay non-negative hex
	long := rolling31("the quick brown fox jumps over the lazy dog, repeatedly and at length")
	if long == "" || long[0] == '-' {
		t.Fatalf("unexpected rolling31 output %q", long)
	}
}

func TestNewFingerprinterRejectsUnknown(t *testing.T) {
	if _, err := NewFingerprinter("md5"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}
