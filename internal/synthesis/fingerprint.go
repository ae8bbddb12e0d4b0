package synthesis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"docsynth/internal/models"
)

const (
	AlgorithmSHA256    = "sha256"
	AlgorithmRolling31 = "rolling31"
)

// Fingerprinter reduces a source set to an order-independent cache key.
type Fingerprinter struct {
	algorithm string
}

func NewFingerprinter(algorithm string) (*Fingerprinter, error) {
	switch algorithm {
	case "":
		algorithm = AlgorithmSHA256
	case AlgorithmSHA256, AlgorithmRolling31:
	default:
		return nil, fmt.Errorf("unsupported fingerprint algorithm %q", algorithm)
	}
	return &Fingerprinter{algorithm: algorithm}, nil
}

func (f *Fingerprinter) Algorithm() string {
	return f.algorithm
}

func (f *Fingerprinter) Fingerprint(docs []models.SourceDocument) string {
	canonical := canonicalSourceSet(docs)
	if f.algorithm == AlgorithmRolling31 {
		return rolling31(canonical)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func canonicalSourceSet(docs []models.SourceDocument) string {
	entries := make([]string, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.ID+"|"+doc.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n")
}

// rolling31 is the legacy h = h*31 + c hash over UTF-16 code units with int32 wraparound,
// rendered as hex of |h|.
func rolling31(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 16)
}
