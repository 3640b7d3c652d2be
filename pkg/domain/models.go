package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ExternalAccount is the reserved sender used for money entering the bank
// from outside. It never has a row in the accounts table.
const ExternalAccount = "SYS_EXTERNAL"

// OpeningBalance is credited to the savings account created at registration.
var OpeningBalance = decimal.RequireFromString("100000.00")

// CustomerID accepts both JSON numbers and numeric strings, since form inputs
// and session payloads disagree on the encoding.
type CustomerID int64

// AnyOwner disables the ownership check when locking an account.
const AnyOwner CustomerID = 0

func ParseCustomerID(s string) (CustomerID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid customer id %q", s)
	}
	return CustomerID(id), nil
}

func (id CustomerID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id *CustomerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		parsed, err := ParseCustomerID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid customer id %s", b)
	}
	*id = CustomerID(n)
	return nil
}

type AccountType string

const (
	AccountSavings AccountType = "Savings"
	AccountCurrent AccountType = "Current"
)

type Account struct {
	No         string          `json:"account_no"`
	BranchID   int             `json:"branch_id"`
	CustomerID CustomerID      `json:"customer_id"`
	Type       AccountType     `json:"account_type"`
	Balance    decimal.Decimal `json:"balance"`
}

func (a Account) OwnedBy(id CustomerID) bool {
	return a.CustomerID == id
}

type Customer struct {
	ID           CustomerID `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	MobileNumber string     `json:"mobile_number"`
	Address      string     `json:"address,omitempty"`
}

// Registration carries the fields needed to open a customer with its first
// savings account.
type Registration struct {
	Name         string
	Email        string
	MobileNumber string
	Address      string
}

type TransferRecord struct {
	ID                int64           `json:"id"`
	SenderAccountNo   string          `json:"sender_account_no"`
	ReceiverAccountNo string          `json:"receiver_account_no"`
	Amount            decimal.Decimal `json:"amount"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (r TransferRecord) External() bool {
	return r.SenderAccountNo == ExternalAccount
}

// TransferEntry is a TransferRecord joined with the names of both parties.
// SenderName is empty for external deposits.
type TransferEntry struct {
	TransferRecord
	SenderName   string `json:"sender_name"`
	ReceiverName string `json:"receiver_name"`
}

type BillStatus string

const (
	BillSuccess BillStatus = "Success"
	BillFailed  BillStatus = "Failed"
)

type BillPaymentRecord struct {
	ID         int64           `json:"id"`
	CustomerID CustomerID      `json:"customer_id"`
	BillerName string          `json:"biller_name"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Status     BillStatus      `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AccountNumber derives the account number for the n-th account of a
// customer. The first account keeps the short BNB###### form.
func AccountNumber(id CustomerID, n int) string {
	if n <= 0 {
		return fmt.Sprintf("BNB%06d", id)
	}
	return fmt.Sprintf("BNB%06d%02d", id, n)
}
