// Package codephrase implements Flux's human-readable shared secret:
// NNNN-word-word-word-word, drawn from a fixed 256-entry dictionary
// (spec §4.10/§6). A phrase both authenticates a peer (it is bound into
// the key derivation in internal/crypto) and serves as the mDNS discovery
// match key once hashed.
package codephrase

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// WordCount is the number of words following the numeric prefix.
const WordCount = 4

// HashLength is the number of hex characters kept from the BLAKE3 digest
// to form the mDNS code_hash match key.
const HashLength = 16

var phrasePattern = regexp.MustCompile(`^[0-9]{4}(-[a-z]{3})+$`)

// Generate produces a random phrase of the form NNNN-word-word-word-word,
// with NNNN uniformly distributed in [1000, 9999] and each word drawn
// independently from the dictionary.
func Generate() (string, error) {
	n, err := randomInt(1000, 9999)
	if err != nil {
		return "", err
	}

	words := make([]string, WordCount)
	for i := range words {
		idx, err := randomInt(0, len(dictionary)-1)
		if err != nil {
			return "", err
		}
		words[i] = dictionary[idx]
	}

	return fmt.Sprintf("%d-%s", n, strings.Join(words, "-")), nil
}

// Validate reports whether phrase matches the NNNN-word-word-word-word
// format with every word present in the dictionary.
func Validate(phrase string) error {
	if !phrasePattern.MatchString(phrase) {
		return fmt.Errorf("codephrase: %q does not match the NNNN-word-word-word-word format", phrase)
	}

	parts := strings.Split(phrase, "-")
	numPart, words := parts[0], parts[1:]

	n, err := strconv.Atoi(numPart)
	if err != nil || n < 1000 || n > 9999 {
		return fmt.Errorf("codephrase: numeric prefix %q out of range [1000, 9999]", numPart)
	}
	if len(words) != WordCount {
		return fmt.Errorf("codephrase: expected %d words, got %d", WordCount, len(words))
	}
	for _, w := range words {
		if !inDictionary(w) {
			return fmt.Errorf("codephrase: %q is not in the dictionary", w)
		}
	}
	return nil
}

// Hash returns the first HashLength hex characters of BLAKE3(phrase),
// used as the mDNS TXT code_hash property (spec §6).
func Hash(phrase string) string {
	h := blake3.New()
	h.Write([]byte(phrase))
	digest := hex.EncodeToString(h.Sum(nil))
	if len(digest) < HashLength {
		return digest
	}
	return digest[:HashLength]
}

func inDictionary(word string) bool {
	for _, w := range dictionary {
		if w == word {
			return true
		}
	}
	return false
}

func randomInt(min, max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, fmt.Errorf("codephrase: generating random number: %w", err)
	}
	return min + int(n.Int64()), nil
}
