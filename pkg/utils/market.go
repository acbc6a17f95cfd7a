package utils

import (
	"strings"
)

// Board identifies the listing board of an A-share symbol.
type Board string

const (
	BoardShanghaiMain Board = "SH_MAIN"
	BoardSTAR         Board = "STAR"
	BoardShenzhenMain Board = "SZ_MAIN"
	BoardChiNext      Board = "CHINEXT"
	BoardBeijing      Board = "BJ"
	BoardUnknown      Board = "UNKNOWN"
)

// LotSize is the minimum tradable unit of A-shares.
const LotSize = 100

// BoardOf classifies a six-digit symbol by prefix.
func BoardOf(symbol string) Board {
	switch {
	case strings.HasPrefix(symbol, "688"):
		return BoardSTAR
	case strings.HasPrefix(symbol, "60"):
		return BoardShanghaiMain
	case strings.HasPrefix(symbol, "300"), strings.HasPrefix(symbol, "301"):
		return BoardChiNext
	case strings.HasPrefix(symbol, "00"):
		return BoardShenzhenMain
	case strings.HasPrefix(symbol, "8"), strings.HasPrefix(symbol, "4"), strings.HasPrefix(symbol, "92"):
		return BoardBeijing
	}
	return BoardUnknown
}

// PriceLimitPct returns the daily price limit of the board in percent.
func PriceLimitPct(symbol, name string) float64 {
	if IsSpecialTreatment(name) {
		return 5
	}
	switch BoardOf(symbol) {
	case BoardSTAR, BoardChiNext:
		return 20
	case BoardBeijing:
		return 30
	}
	return 10
}

// IsSpecialTreatment reports ST / *ST names and names flagged for delisting.
func IsSpecialTreatment(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "ST") || strings.Contains(name, "退")
}

// IsNewListing reports first-session names, which carry an "N" prefix.
func IsNewListing(name string) bool {
	return strings.HasPrefix(name, "N")
}

// RoundLot rounds shares down to whole lots.
func RoundLot(shares int) int {
	if shares <= 0 {
		return 0
	}
	return shares / LotSize * LotSize
}
