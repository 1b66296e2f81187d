package classify

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	summaryRe   = regexp.MustCompile(`(?s)---SUMMARY---(.*)`)
)

// parseResponse splits a provider response into the score object and the
// free-text summary. The score object must arrive in a fenced json block;
// the summary follows a ---SUMMARY--- delimiter and may be absent.
func parseResponse(raw string) (*Result, error) {
	jsonMatch := jsonBlockRe.FindStringSubmatch(raw)
	if jsonMatch == nil {
		return nil, errors.New("no json block in classifier response")
	}
	jsonPart := strings.TrimSpace(jsonMatch[1])

	summary := ""
	if summaryMatch := summaryRe.FindStringSubmatch(raw); summaryMatch != nil {
		summary = strings.TrimSpace(summaryMatch[1])
	}

	scores, err := decodeScores(jsonPart)
	if err != nil {
		// Some models emit single-quoted pseudo-JSON; repair once and retry.
		scores, err = decodeScores(strings.ReplaceAll(jsonPart, "'", `"`))
		if err != nil {
			return nil, err
		}
	}

	return &Result{Scores: scores, Summary: summary}, nil
}

func decodeScores(jsonPart string) (map[string]int, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(jsonPart), &values); err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(values))
	for key, value := range values {
		scores[key] = coerceScore(value)
	}
	return scores, nil
}

func coerceScore(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}
