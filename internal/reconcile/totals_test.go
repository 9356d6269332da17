package reconcile

import (
	"testing"

	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
)

func paid(name, total string) receipt.Item {
	it := item(name, total)
	it.PriceAfterDiscount = it.LineTotal
	return it
}

func TestVerifyTotalsImplausiblyLargeDeclared(t *testing.T) {
	items := []receipt.Item{paid("Mleko", "50.00"), paid("Chleb", "25.00")}
	res := VerifyTotals(items, dec("200.00"), "", DefaultTotalsConfig(), nil)
	if res.CorrectedTotal.String() != "75" {
		t.Errorf("corrected = %s, want 75", res.CorrectedTotal)
	}
	if res.Discrepancy.String() != "125" {
		t.Errorf("discrepancy = %s, want 125", res.Discrepancy)
	}
	if res.InferredCardDiscount != nil {
		t.Errorf("no card discount expected, got %s", res.InferredCardDiscount)
	}
}

func TestVerifyTotalsSmallDiscrepancyLeftAlone(t *testing.T) {
	items := []receipt.Item{paid("Mleko", "50.00")}
	res := VerifyTotals(items, dec("50.30"), "", DefaultTotalsConfig(), nil)
	if res.CorrectedTotal.String() != "50.3" {
		t.Errorf("corrected = %s, want declared 50.3 kept", res.CorrectedTotal)
	}
}

func TestVerifyTotalsDeclaredLowerByCardDenomination(t *testing.T) {
	items := []receipt.Item{paid("Zakupy", "110.00")}
	// Declared is 10 lower: a typical loyalty denomination on a plausible basket.
	res := VerifyTotals(items, dec("100.00"), "", DefaultTotalsConfig(), nil)
	if res.CorrectedTotal.String() != "100" {
		t.Errorf("corrected = %s, want declared 100 accepted", res.CorrectedTotal)
	}
	if res.InferredCardDiscount == nil {
		t.Fatal("expected inferred card discount")
	}
	if res.InferredCardDiscount.String() != "10" {
		t.Errorf("card discount = %s, want 10", res.InferredCardDiscount)
	}
}

func TestVerifyTotalsCardKeywordOnItem(t *testing.T) {
	items := []receipt.Item{
		paid("Mleko", "50.00"),
		item("Moja Biedronka oszczędność", "-15.00"),
	}
	res := VerifyTotals(items, dec("35.00"), "", DefaultTotalsConfig(), nil)
	if res.InferredCardDiscount == nil {
		t.Fatal("expected card discount from item keyword")
	}
	if res.InferredCardDiscount.String() != "15" {
		t.Errorf("card discount = %s, want 15", res.InferredCardDiscount)
	}
}

func TestVerifyTotalsSavedPatternInOCRText(t *testing.T) {
	items := []receipt.Item{paid("Zakupy", "80.00")}
	ocr := "LIDL sp. z o.o.\n...\nDzięki Lidl Plus zaoszczędziłeś 12,50 zł\n"
	res := VerifyTotals(items, dec("67.50"), ocr, DefaultTotalsConfig(), nil)
	if res.InferredCardDiscount == nil {
		t.Fatal("expected card discount from OCR savings pattern")
	}
	if res.InferredCardDiscount.String() != "12.5" {
		t.Errorf("card discount = %s, want 12.5", res.InferredCardDiscount)
	}
}

func TestVerifyTotalsCardAmountBoundedByMaxCardDiscount(t *testing.T) {
	// A basket-sized amount next to a loyalty keyword is a product, not a
	// voucher.
	items := []receipt.Item{paid("payback super oferta", "600.00")}
	res := VerifyTotals(items, dec("600.00"), "", DefaultTotalsConfig(), nil)
	if res.InferredCardDiscount != nil {
		t.Errorf("basket-sized amount taken for a card discount: %s", res.InferredCardDiscount)
	}

	ocr := "Dzięki Lidl Plus zaoszczędziłeś 600,00 zł"
	res = VerifyTotals([]receipt.Item{paid("Zakupy", "80.00")}, dec("80.00"), ocr, DefaultTotalsConfig(), nil)
	if res.InferredCardDiscount != nil {
		t.Errorf("implausible savings callout accepted: %s", res.InferredCardDiscount)
	}
}

func TestVerifyTotalsCorrectionSubtractsInferredCard(t *testing.T) {
	// Declared misread upward AND a card line present: correction uses
	// computed minus the card discount, floored at zero.
	items := []receipt.Item{
		paid("Mleko", "30.00"),
		item("payback rabat", "-5.00"),
	}
	res := VerifyTotals(items, dec("300.00"), "", DefaultTotalsConfig(), nil)
	if res.InferredCardDiscount == nil {
		t.Fatal("expected card discount")
	}
	if res.CorrectedTotal.String() != "20" {
		t.Errorf("corrected = %s, want 25-5=20", res.CorrectedTotal)
	}
}
