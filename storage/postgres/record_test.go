package pgstore

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecord_Notification(t *testing.T) {
	rec := &Record{
		MerchantID: "1010",
		TransID:    "TR-1",
		Status:     "TRUE",
		Error:      "overpay",
		Amount:     decimal.RequireFromString("10.00"),
		Paid:       decimal.RequireFromString("12.50"),
	}
	n := rec.Notification()
	if n.TransID != "TR-1" || !n.IsPaid() || !n.Overpaid() {
		t.Fatalf("unexpected notification: %+v", n)
	}

	rec.Status = "CHARGEBACK"
	rec.Paid = rec.Amount
	n = rec.Notification()
	if n.IsPaid() || n.Overpaid() {
		t.Fatalf("chargeback must not read as paid: %+v", n)
	}
}
