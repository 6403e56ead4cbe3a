package phrases

import (
	"math"
	"strings"
)

// Difficulty scoring is deterministic: the same text and language always
// produce the same score, so client-side previews and the stored value
// never diverge. Factors are summed as float64 and rounded half-up once.
const (
	minDifficulty = 1
	maxDifficulty = 100

	wordFactorWeight       = 8.0
	wordFactorExponent     = 1.5
	letterFactorWeight     = 1.5
	commonalityWeight      = 30.0
	shortPhraseDampening   = 0.3
	shortPhraseLetterLimit = 3
	repetitionPenaltyMax   = 20.0
)

// LanguageEnglish and LanguageSwedish are the supported language tags.
// Anything else is scored with the English tables.
const (
	LanguageEnglish = "en"
	LanguageSwedish = "sv"
)

// Relative letter frequencies (percent) per supported language.
var englishFrequencies = map[rune]float64{
	'a': 8.2, 'b': 1.5, 'c': 2.8, 'd': 4.3, 'e': 12.7, 'f': 2.2,
	'g': 2.0, 'h': 6.1, 'i': 7.0, 'j': 0.15, 'k': 0.77, 'l': 4.0,
	'm': 2.4, 'n': 6.7, 'o': 7.5, 'p': 1.9, 'q': 0.095, 'r': 6.0,
	's': 6.3, 't': 9.1, 'u': 2.8, 'v': 0.98, 'w': 2.4, 'x': 0.15,
	'y': 2.0, 'z': 0.074,
}

var swedishFrequencies = map[rune]float64{
	'a': 9.4, 'b': 1.5, 'c': 1.5, 'd': 4.7, 'e': 10.1, 'f': 2.0,
	'g': 2.9, 'h': 2.1, 'i': 5.8, 'j': 0.61, 'k': 3.2, 'l': 5.3,
	'm': 3.5, 'n': 8.5, 'o': 4.5, 'p': 1.8, 'q': 0.02, 'r': 8.4,
	's': 6.6, 't': 7.7, 'u': 1.9, 'v': 2.4, 'w': 0.14, 'x': 0.16,
	'y': 0.71, 'z': 0.07, 'å': 1.8, 'ä': 1.8, 'ö': 1.3,
}

func frequenciesFor(language string) map[rune]float64 {
	if NormalizeLanguage(language) == LanguageSwedish {
		return swedishFrequencies
	}
	return englishFrequencies
}

func letterSetFor(language string) map[rune]bool {
	frequencies := frequenciesFor(language)
	letters := make(map[rune]bool, len(frequencies))
	for letter := range frequencies {
		letters[letter] = true
	}
	return letters
}

// NormalizeLanguage maps a raw language tag onto a supported one,
// defaulting to English.
func NormalizeLanguage(language string) string {
	if strings.ToLower(strings.TrimSpace(language)) == LanguageSwedish {
		return LanguageSwedish
	}
	return LanguageEnglish
}

// DifficultyFor scores phrase text on the 1-100 scale. The same function
// backs creation-time scoring and preview estimates.
func DifficultyFor(text, language string) int {
	frequencies := frequenciesFor(language)
	words, letters := normalizeText(text, frequencies)
	if len(letters) == 0 {
		return minDifficulty
	}

	score := wordCountFactor(words) +
		letterCountFactor(letters) +
		commonalityFactor(letters, frequencies) +
		repetitionPenalty(letters)

	rounded := int(math.Round(score))
	if rounded < minDifficulty {
		return minDifficulty
	}
	if rounded > maxDifficulty {
		return maxDifficulty
	}
	return rounded
}

// normalizeText lowercases the input, keeps only letters from the
// language's alphabet, and counts words that still carry letters.
func normalizeText(text string, frequencies map[rune]float64) (int, []rune) {
	words := 0
	letters := make([]rune, 0, len(text))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		kept := 0
		for _, r := range word {
			if _, ok := frequencies[r]; ok {
				letters = append(letters, r)
				kept++
			}
		}
		if kept > 0 {
			words++
		}
	}
	return words, letters
}

// Multi-word phrases are super-linearly harder: word boundaries multiply
// the permutation space.
func wordCountFactor(words int) float64 {
	return wordFactorWeight * math.Pow(float64(words), wordFactorExponent)
}

func letterCountFactor(letters []rune) float64 {
	return letterFactorWeight * float64(len(letters))
}

// commonalityFactor raises difficulty for rare letters, dampened for very
// short phrases so trivial inputs do not get inflated.
func commonalityFactor(letters []rune, frequencies map[rune]float64) float64 {
	maxFrequency := 0.0
	for _, frequency := range frequencies {
		if frequency > maxFrequency {
			maxFrequency = frequency
		}
	}

	raritySum := 0.0
	for _, letter := range letters {
		raritySum += 1.0 - frequencies[letter]/maxFrequency
	}
	factor := commonalityWeight * raritySum / float64(len(letters))
	if len(letters) <= shortPhraseLetterLimit {
		factor *= shortPhraseDampening
	}
	return factor
}

// repetitionPenalty lowers difficulty for repeated letters: duplicates
// shrink the distinct-anagram space. Always non-positive.
func repetitionPenalty(letters []rune) float64 {
	distinct := make(map[rune]struct{}, len(letters))
	for _, letter := range letters {
		distinct[letter] = struct{}{}
	}
	duplicateFraction := float64(len(letters)-len(distinct)) / float64(len(letters))
	return -repetitionPenaltyMax * duplicateFraction
}
