package classifier

var legalKeywords = map[string]struct{}{
	"act":          {},
	"advocate":     {},
	"affidavit":    {},
	"agreement":    {},
	"appeal":       {},
	"appellant":    {},
	"arbitration":  {},
	"bail":         {},
	"clause":       {},
	"contract":     {},
	"counsel":      {},
	"court":        {},
	"decree":       {},
	"defendant":    {},
	"hereby":       {},
	"hereinafter":  {},
	"indemnity":    {},
	"injunction":   {},
	"judgment":     {},
	"judgement":    {},
	"jurisdiction": {},
	"lease":        {},
	"legal":        {},
	"litigation":   {},
	"notice":       {},
	"petition":     {},
	"petitioner":   {},
	"plaintiff":    {},
	"respondent":   {},
	"section":      {},
	"statute":      {},
	"summons":      {},
	"tenant":       {},
	"tribunal":     {},
	"warrant":      {},
	"whereas":      {},
}

// keywordHits counts distinct legal keywords among the tokens.
func keywordHits(tokens []string) int {
	seen := make(map[string]struct{}, 8)
	for _, token := range tokens {
		if _, ok := legalKeywords[token]; ok {
			seen[token] = struct{}{}
		}
	}
	return len(seen)
}
