package sizing

// LotClassifier returns the minimum tradeable lot size for a symbol. Lot
// conventions are market-specific, so the rule is pluggable rather than
// hardcoded into the manager.
type LotClassifier func(symbol string) int64

// CNBoardLots is the mainland-China convention: STAR-board symbols (numeric
// codes with the 688 prefix) trade in 200-share lots, everything else in
// 100-share lots.
func CNBoardLots(symbol string) int64 {
	if isDigits(symbol) && len(symbol) >= 3 && symbol[:3] == "688" {
		return 200
	}
	return 100
}

// FixedLots returns a classifier that gives every symbol the same lot size.
// Useful for markets without board-dependent lot rules.
func FixedLots(lot int64) LotClassifier {
	return func(string) int64 { return lot }
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
