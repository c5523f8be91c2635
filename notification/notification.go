// Package notification decodes the body of a verified payment notification.
package notification

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// ErrInvalidNotification reports a body that does not have the expected shape.
var ErrInvalidNotification = errors.New("notification: invalid notification")

// Transaction status values sent by the provider.
const (
	StatusTrue       = "TRUE"
	StatusPaid       = "PAID"
	StatusFalse      = "FALSE"
	StatusChargeback = "CHARGEBACK"
)

// Notification is a transaction status notification.
type Notification struct {
	MerchantID  string          `json:"id"`
	TransID     string          `json:"tr_id"`
	Date        string          `json:"tr_date,omitempty"`
	CRC         string          `json:"tr_crc,omitempty"`
	Amount      decimal.Decimal `json:"tr_amount"`
	Paid        decimal.Decimal `json:"tr_paid"`
	Description string          `json:"tr_desc,omitempty"`
	Status      string          `json:"tr_status"`
	Error       string          `json:"tr_error,omitempty"`
	Email       string          `json:"tr_email,omitempty"`
	TestMode    bool            `json:"test_mode"`
	MD5Sum      string          `json:"md5sum,omitempty"`

	rawAmount string
}

// wire mirrors the body with every field as text so form and JSON bodies decode alike.
type wire struct {
	ID       flexString `json:"id"`
	TrID     flexString `json:"tr_id"`
	TrDate   flexString `json:"tr_date"`
	TrCRC    flexString `json:"tr_crc"`
	TrAmount flexString `json:"tr_amount"`
	TrPaid   flexString `json:"tr_paid"`
	TrDesc   flexString `json:"tr_desc"`
	TrStatus flexString `json:"tr_status"`
	TrError  flexString `json:"tr_error"`
	TrEmail  flexString `json:"tr_email"`
	TestMode flexString `json:"test_mode"`
	MD5Sum   flexString `json:"md5sum"`
}

// flexString accepts JSON strings, numbers and booleans.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		if v {
			*f = "1"
		} else {
			*f = "0"
		}
		return nil
	}
	return fmt.Errorf("unsupported value %s", string(b))
}

// Decode parses body according to contentType. Form encoding is assumed when the
// content type is empty or unrecognised.
func Decode(contentType string, body []byte) (*Notification, error) {
	var w wire
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidNotification, err)
		}
	default:
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidNotification, err)
		}
		w = wire{
			ID:       flexString(vals.Get("id")),
			TrID:     flexString(vals.Get("tr_id")),
			TrDate:   flexString(vals.Get("tr_date")),
			TrCRC:    flexString(vals.Get("tr_crc")),
			TrAmount: flexString(vals.Get("tr_amount")),
			TrPaid:   flexString(vals.Get("tr_paid")),
			TrDesc:   flexString(vals.Get("tr_desc")),
			TrStatus: flexString(vals.Get("tr_status")),
			TrError:  flexString(vals.Get("tr_error")),
			TrEmail:  flexString(vals.Get("tr_email")),
			TestMode: flexString(vals.Get("test_mode")),
			MD5Sum:   flexString(vals.Get("md5sum")),
		}
	}
	return w.validate()
}

func (w wire) validate() (*Notification, error) {
	n := &Notification{
		MerchantID:  strings.TrimSpace(string(w.ID)),
		TransID:     strings.TrimSpace(string(w.TrID)),
		Date:        strings.TrimSpace(string(w.TrDate)),
		CRC:         string(w.TrCRC),
		Description: string(w.TrDesc),
		Status:      strings.ToUpper(strings.TrimSpace(string(w.TrStatus))),
		Error:       strings.TrimSpace(string(w.TrError)),
		Email:       strings.TrimSpace(string(w.TrEmail)),
		TestMode:    string(w.TestMode) == "1" || strings.EqualFold(string(w.TestMode), "true"),
		MD5Sum:      strings.ToLower(strings.TrimSpace(string(w.MD5Sum))),
		rawAmount:   strings.TrimSpace(string(w.TrAmount)),
	}
	if n.MerchantID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidNotification)
	}
	if n.TransID == "" {
		return nil, fmt.Errorf("%w: missing tr_id", ErrInvalidNotification)
	}
	if n.Status == "" {
		return nil, fmt.Errorf("%w: missing tr_status", ErrInvalidNotification)
	}
	var err error
	if n.Amount, err = parseAmount("tr_amount", string(w.TrAmount)); err != nil {
		return nil, err
	}
	if n.Paid, err = parseAmount("tr_paid", string(w.TrPaid)); err != nil {
		return nil, err
	}
	return n, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: missing %s", ErrInvalidNotification, field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrInvalidNotification, field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s", ErrInvalidNotification, field)
	}
	return d, nil
}

// IsPaid reports whether the transaction was paid.
func (n *Notification) IsPaid() bool {
	return n.Status == StatusTrue || n.Status == StatusPaid
}

// Overpaid reports whether more than the requested amount was received.
func (n *Notification) Overpaid() bool { return n.Paid.GreaterThan(n.Amount) }

// CheckMD5 validates md5sum against the merchant security code. The digest covers
// id, tr_id, tr_amount as sent, tr_crc and the code, concatenated.
func (n *Notification) CheckMD5(securityCode string) error {
	rawAmount := n.rawAmount
	if rawAmount == "" {
		rawAmount = n.Amount.String()
	}
	if n.MD5Sum == "" {
		return fmt.Errorf("%w: missing md5sum", ErrInvalidNotification)
	}
	sum := md5.Sum([]byte(n.MerchantID + n.TransID + rawAmount + n.CRC + securityCode))
	want := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(want), []byte(n.MD5Sum)) != 1 {
		return fmt.Errorf("%w: md5sum mismatch", ErrInvalidNotification)
	}
	return nil
}

// Fingerprint identifies a notification delivery for de-duplication. Redeliveries
// of the same transaction state share a fingerprint.
func (n *Notification) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		n.MerchantID, n.TransID, n.Status, n.Paid.String(), n.Error,
	}, "|")))
	return base58.Encode(sum[:])
}
