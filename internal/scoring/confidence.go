package scoring

import (
	"strings"

	"candor/internal/model"
)

var fillers = []string{"um", "uh", "erm", "like", "you know", "i mean", "basically"}

const fillerPenalty = 5

// Confidence rates a secondary-stage response in [0,100] from its length and filler words.
// It stands in for video analysis.
func Confidence(response string) int {
	text := strings.TrimSpace(response)
	if text == "" {
		return 0
	}
	words := model.WordCount(text)

	var score int
	switch {
	case words < 10:
		score = 30
	case words < 30:
		score = 55
	case words < 60:
		score = 70
	case words < 120:
		score = 80
	default:
		score = 85
	}

	tokens := tokenize(strings.ToLower(text))
	for _, f := range fillers {
		score -= fillerPenalty * countPhrase(tokens, strings.Fields(f))
	}
	return clamp(score, 0, 100)
}

func countPhrase(tokens, phrase []string) int {
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
