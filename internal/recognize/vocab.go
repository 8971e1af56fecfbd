// internal/recognize/vocab.go
package recognize

import "strings"

// Vocabulary maps model token ids to syllables.
var Vocabulary = [...]string{
	"END", "BEG", "BKG", "NOISE",
	"Ba", "Be", "Dle", "Dli", "E", "Et", "F", "Gan", "Ha", "Hei", "I", "K",
	"Ka", "L", "Lon", "Ma", "Mem", "Po", "R", "Re", "Sa", "T", "Ta", "Te",
	"UNK", "Xa", "Xam", "Z",
}

// Control tokens.
const (
	TokenEnd int64 = iota
	TokenBeg
	TokenBkg
	TokenNoise
)

// Syllable returns the lower-case syllable for token, or "" if it is out of range.
func Syllable(token int64) string {
	if token < 0 || token >= int64(len(Vocabulary)) {
		return ""
	}
	return strings.ToLower(Vocabulary[token])
}

// Token looks up a syllable case-insensitively.
func Token(syllable string) (int64, bool) {
	for i, s := range Vocabulary {
		if strings.EqualFold(s, syllable) {
			return int64(i), true
		}
	}
	return 0, false
}

// filler reports whether a token carries no speech content.
func filler(token int64) bool {
	return token == TokenBkg || token == TokenNoise
}
