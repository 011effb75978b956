// Package hashing derives canonical text and content fingerprints from candidates.
// Every function here is pure: the same input always yields the same output.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hotdog-curator/internal/models"
)

// Normalize computes every fingerprint for a candidate
func Normalize(c *models.CandidateItem) models.Fingerprints {
	image := c.Media.ImageURL()
	video := c.Media.VideoURL()
	normalized := NormalizeText(c.Text)

	return models.Fingerprints{
		ExactHash:      ExactHash(c.Text, image, video, c.SourceURL),
		FuzzyHash:      digest(normalized, image, video),
		URLHash:        FieldHash(c.SourceURL),
		ImageHash:      FieldHash(image),
		VideoHash:      FieldHash(video),
		NormalizedText: normalized,
	}
}

// ExactHash digests text, image, video and source URL in that order
func ExactHash(text, imageURL, videoURL, sourceURL string) string {
	return digest(text, imageURL, videoURL, sourceURL)
}

// FieldHash digests a single field. An empty field has no hash so it never matches.
func FieldHash(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return digest(value)
}

// NormalizeText lower-cases, strips punctuation and collapses whitespace
func NormalizeText(text string) string {
	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity is the Jaccard index over the whitespace tokens of two normalized texts
func Similarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// digest length-prefixes every part so no two field tuples share an encoding
func digest(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
