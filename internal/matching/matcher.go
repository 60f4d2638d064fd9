package matching

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/godilite/churnradar/internal/repository/models"
)

// Default bucketing thresholds.
const (
	DefaultAutoConfirm = 0.85
	DefaultReview      = 0.5
)

// Thresholds split match scores into auto-confirmed, needs-review and unmatched.
type Thresholds struct {
	AutoConfirm float64
	Review      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{AutoConfirm: DefaultAutoConfirm, Review: DefaultReview}
}

// EditSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func EditSimilarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}

type candidate struct {
	org        models.Organization
	normalized string
	tokens     tokenSet
}

// Result is the best candidate for one account.
type Result struct {
	AccountID      string
	Organization   *models.Organization
	Score          float64
	Method         string
	Status         string
	Confirmed      bool
	NormalizedName string
}

// Matched reports whether the result links the account to an organization.
func (r Result) Matched() bool {
	return r.Status != models.LinkUnmatched
}

// Matcher links accounts to organizations by name. Organizations are
// normalized once up front; each Match call is O(organizations).
type Matcher struct {
	candidates []candidate
	thresholds Thresholds
}

func NewMatcher(orgs []models.Organization, thresholds Thresholds) *Matcher {
	m := &Matcher{
		candidates: make([]candidate, 0, len(orgs)),
		thresholds: thresholds,
	}
	for _, o := range orgs {
		normalized, tokens := Normalize(o.Name)
		m.candidates = append(m.candidates, candidate{
			org:        o,
			normalized: normalized,
			tokens:     newTokenSet(tokens),
		})
	}
	return m
}

// Match runs the exact, token-overlap and edit-distance passes in order.
// The first organization wins ties.
func (m *Matcher) Match(account models.Account) Result {
	normalized, tokens := Normalize(account.Name)
	res := Result{AccountID: account.ID, NormalizedName: normalized, Status: models.LinkUnmatched}

	if normalized != "" {
		for i := range m.candidates {
			if m.candidates[i].normalized == normalized {
				res.Organization = &m.candidates[i].org
				res.Score = 1.0
				res.Method = models.MatchExact
				m.bucket(&res)
				return res
			}
		}
	}

	set := newTokenSet(tokens)
	best := -1
	bestScore := 0.0
	for i := range m.candidates {
		score := jaccard(set, m.candidates[i].tokens)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return res
	}
	res.Organization = &m.candidates[best].org
	res.Score = bestScore
	res.Method = models.MatchTokenOverlap

	if bestScore < m.thresholds.Review {
		for i := range m.candidates {
			score := EditSimilarity(normalized, m.candidates[i].normalized)
			if score > res.Score {
				res.Organization = &m.candidates[i].org
				res.Score = score
				res.Method = models.MatchEditDistance
			}
		}
	}

	m.bucket(&res)
	return res
}

func (m *Matcher) bucket(res *Result) {
	switch {
	case res.Score >= m.thresholds.AutoConfirm:
		res.Status = models.LinkHighConfidence
		res.Confirmed = true
	case res.Score >= m.thresholds.Review:
		res.Status = models.LinkNeedsReview
	default:
		res.Status = models.LinkUnmatched
	}
}
