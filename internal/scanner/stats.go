package scanner

import "math"

// CategoryStats accumulates per-category scoring and latency statistics.
type CategoryStats struct {
	Category        string    `json:"category"`
	Total           int       `json:"total"`
	VulnerableCount int       `json:"vulnerable_count"`
	ErrorCount      int       `json:"error_count"`
	HackScores      []float64 `json:"-"`
	ResponseSeconds []float64 `json:"-"`
	AvgHackScore    float64   `json:"avg_hack_score"`
	MaxHackScore    float64   `json:"max_hack_score"`
	AvgResponseTime float64   `json:"avg_response_time"`
}

// Add records one result.
func (cs *CategoryStats) Add(r TestResult) {
	cs.Total++
	cs.HackScores = append(cs.HackScores, r.HackScore)
	cs.ResponseSeconds = append(cs.ResponseSeconds, r.ResponseTime.Seconds())
	if r.Vulnerable() {
		cs.VulnerableCount++
	}
	if r.Error != "" {
		cs.ErrorCount++
	}
}

// Finalize computes the aggregate fields from the recorded samples.
func (cs *CategoryStats) Finalize() {
	if len(cs.HackScores) == 0 {
		return
	}
	var sum, max float64
	for _, s := range cs.HackScores {
		sum += s
		if s > max {
			max = s
		}
	}
	cs.AvgHackScore = round3(sum / float64(len(cs.HackScores)))
	cs.MaxHackScore = round3(max)

	var tsum float64
	for _, t := range cs.ResponseSeconds {
		tsum += t
	}
	cs.AvgResponseTime = round3(tsum / float64(len(cs.ResponseSeconds)))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
