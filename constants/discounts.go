package constants

// DiscountKeywords are the line labels Polish receipts use for a reduction
// applied to the preceding item.
var DiscountKeywords = []string{"rabat", "upust"}

// CardKeywords mark loyalty-program discounts applied at the total level.
var CardKeywords = []string{
	"moja biedronka",
	"biedronka karta",
	"lidl plus",
	"kaufland card",
	"payback",
	"skarbonka",
	"karta lojalnościowa",
	"karta lojalnosciowa",
}

// CardDenominations are the loyalty discount amounts observed in practice,
// in PLN, as exact-decimal strings. Calibration values, not derived.
var CardDenominations = []string{"5.00", "10.00", "15.00", "20.00", "25.00", "30.00", "50.00"}
