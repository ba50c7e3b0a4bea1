package services

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// looseString accepts a JSON string or a bare number, since models emit ids both ways.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	*s = looseString(data)
	return nil
}

// looseFloat accepts 85, 85.5 or "85".
type looseFloat struct {
	value float64
	set   bool
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

type scoredEntry struct {
	ID          looseString `json:"id"`
	Score       looseFloat  `json:"score"`
	HealthScore looseFloat  `json:"health_score"`
}

// parseScores decodes the first JSON array in a completion and maps each
// entry's id to the named score field ("score" or "health_score"), clamped to
// 0..100. Entries without an id or score are skipped. Models often wrap the
// array in prose or a code fence, so text around it is ignored.
func parseScores(text, field string) (map[string]float64, error) {
	entries, err := decodeFirstArray([]byte(text))
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(entries))
	for _, e := range entries {
		score := e.Score
		if field == "health_score" {
			score = e.HealthScore
		}
		if e.ID == "" || !score.set {
			continue
		}
		scores[string(e.ID)] = clamp(score.value, 0, 100)
	}
	return scores, nil
}

// decodeFirstArray tries each '[' in turn and decodes one value from it;
// whatever follows the array is left unread.
func decodeFirstArray(text []byte) ([]scoredEntry, error) {
	var firstErr error
	for start := bytes.IndexByte(text, '['); start >= 0; {
		var entries []scoredEntry
		err := json.NewDecoder(bytes.NewReader(text[start:])).Decode(&entries)
		if err == nil {
			return entries, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		next := bytes.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	if firstErr == nil {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrCompletionUnparsable)
	}
	return nil, fmt.Errorf("%w: %v", ErrCompletionUnparsable, firstErr)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
