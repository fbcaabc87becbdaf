package nextsteps

import (
	"regexp"
	"sort"
)

const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
	LabelLaw    = "LAW"
	LabelMoney  = "MONEY"
	LabelDate   = "DATE"
)

type Entity struct {
	Text  string
	Label string
	start int
	end   int
}

type rule struct {
	label   string
	pattern *regexp.Regexp
	// group selects the submatch used as entity text; 0 is the whole match.
	group int
}

// Recognizer is a rule-based named entity recogniser for Indian legal text.
type Recognizer struct {
	rules []rule
}

const (
	capWord  = `[A-Z][A-Za-z.&'-]*`
	capWords = capWord + `(?:\s+(?:of\s+|and\s+|&\s+)?` + capWord + `)*`
	month    = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`
)

func NewRecognizer() *Recognizer {
	return &Recognizer{rules: []rule{
		{label: LabelLaw, pattern: regexp.MustCompile(`\b(?:[A-Z][a-z]+\s+)+(?:Act|Code|Rules|Regulations)(?:,\s*\d{4})?`)},
		{label: LabelLaw, pattern: regexp.MustCompile(`(?i)\b(?:section|article|order|rule)\s+\d+[A-Z]?(?:\(\d+\))*(?:\s+(?:of\s+the\s+)?(?:IPC|CrPC|CPC|BNS|BNSS|Constitution))?`)},
		{label: LabelMoney, pattern: regexp.MustCompile(`(?i)(?:\brs\.?|\binr|₹)\s*\d[\d,]*(?:\.\d{1,2})?(?:\s*(?:lakhs?|crores?|/-))?`)},
		{label: LabelDate, pattern: regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
		{label: LabelDate, pattern: regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+` + month + `,?\s+\d{4}\b`)},
		{label: LabelDate, pattern: regexp.MustCompile(`\b` + month + `\s+\d{1,2},?\s+\d{4}\b`)},
		{label: LabelPerson, pattern: regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Shri|Smt|Sri|Kumari|Justice|Adv)\.?\s+(` + capWord + `(?:\s+` + capWord + `){0,3})`), group: 1},
		{label: LabelOrg, pattern: regexp.MustCompile(`\b` + capWords + `\s+(?:Ltd\.?|Limited|Pvt\.?\s+Ltd\.?|LLP|Bank|Corporation|Company|Authority|Board|Municipal\s+Corporation)`)},
		{label: LabelOrg, pattern: regexp.MustCompile(`\b(?:(?:Supreme|High|District|Sessions|Family|Consumer)\s+Court|National\s+Company\s+Law\s+Tribunal|` + capWords + `\s+(?:Tribunal|Commission|Forum))(?:\s+of\s+` + capWord + `|\s+at\s+` + capWord + `)?`)},
	}}
}

// Recognize returns non-overlapping entities in text order. When spans
// overlap the earlier and then the longer one wins.
func (r *Recognizer) Recognize(text string) []Entity {
	var candidates []Entity
	for _, rl := range r.rules {
		for _, idx := range rl.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2*rl.group], idx[2*rl.group+1]
			if start < 0 {
				continue
			}
			candidates = append(candidates, Entity{
				Text:  text[start:end],
				Label: rl.label,
				start: start,
				end:   end,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end-candidates[i].start > candidates[j].end-candidates[j].start
	})

	out := make([]Entity, 0, len(candidates))
	lastEnd := -1
	for _, c := range candidates {
		if c.start < lastEnd {
			continue
		}
		out = append(out, c)
		lastEnd = c.end
	}
	return out
}
