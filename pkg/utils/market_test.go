package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoardOf(t *testing.T) {
	cases := map[string]Board{
		"600519": BoardShanghaiMain,
		"688981": BoardSTAR,
		"000001": BoardShenzhenMain,
		"300750": BoardChiNext,
		"830799": BoardBeijing,
		"ABC":    BoardUnknown,
	}
	for symbol, want := range cases {
		assert.Equal(t, want, BoardOf(symbol), symbol)
	}
}

func TestSpecialTreatmentAndListing(t *testing.T) {
	assert.True(t, IsSpecialTreatment("*ST康美"))
	assert.True(t, IsSpecialTreatment("退市海润"))
	assert.False(t, IsSpecialTreatment("贵州茅台"))
	assert.True(t, IsNewListing("N华勤"))
	assert.Equal(t, 5.0, PriceLimitPct("600001", "ST东方"))
	assert.Equal(t, 20.0, PriceLimitPct("300750", "宁德时代"))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "¥1,234,567.80", FormatAmount(1234567.8))
	assert.Equal(t, "-¥999.00", FormatAmount(-999))
	assert.Equal(t, "+2.50%", FormatPercent(2.5))
	assert.Equal(t, "12,300", FormatQuantity(12300))
	assert.Equal(t, "5.00万", FormatCompact(50000))
	assert.Equal(t, 2500, RoundLot(2599))
}
