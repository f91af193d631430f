package pipeline

import (
	"math"
	"regexp"
	"strings"

	"github.com/anchorhq/anchor/internal/scoring"
)

// Transcript-quality heuristics. Chunks with no recognizer confidence
// count as defaultChunkConfidence; very short transcripts are shrunk by
// the length bands, and word-free or highly repetitive text by the
// coherence factors.
const (
	defaultChunkConfidence = 0.9

	shortLenChars  = 3
	mediumLenChars = 6
	longLenChars   = 12

	shortLenFactor  = 0.4
	mediumLenFactor = 0.6
	longLenFactor   = 0.8

	noWordsFactor    = 0.5
	repetitionFactor = 0.85
	uniqueRatioFloor = 0.5
)

var wordRe = regexp.MustCompile(`\w+`)

// TranscriptConfidence estimates how trustworthy the stitched
// transcript is: a character-length-weighted average of per-chunk
// recognizer confidence, shrunk for very short or highly repetitive
// text. Result is clamped to [0,1] and rounded to 2 decimals.
func TranscriptConfidence(transcript string, chunks []scoring.ChunkConfidence) float64 {
	transcript = strings.TrimSpace(transcript)

	totalChars := 0
	weighted := 0.0
	for _, c := range chunks {
		txt := strings.TrimSpace(c.Text)
		if txt == "" {
			continue
		}
		conf := defaultChunkConfidence
		if c.Confidence != nil {
			conf = math.Max(0, math.Min(*c.Confidence, 1))
		}
		n := len(txt)
		totalChars += n
		weighted += conf * float64(n)
	}

	avgConf := defaultChunkConfidence
	if totalChars > 0 {
		avgConf = weighted / float64(totalChars)
	}

	var lengthFactor float64
	switch l := len(transcript); {
	case l < shortLenChars:
		lengthFactor = shortLenFactor
	case l < mediumLenChars:
		lengthFactor = mediumLenFactor
	case l < longLenChars:
		lengthFactor = longLenFactor
	default:
		lengthFactor = 1.0
	}

	words := wordRe.FindAllString(strings.ToLower(transcript), -1)
	coherenceFactor := 1.0
	if len(words) == 0 {
		coherenceFactor = noWordsFactor
	} else {
		unique := map[string]struct{}{}
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < uniqueRatioFloor {
			coherenceFactor = repetitionFactor
		}
	}

	conf := avgConf * lengthFactor * coherenceFactor
	conf = math.Max(0, math.Min(conf, 1))
	return math.Round(conf*100) / 100
}
