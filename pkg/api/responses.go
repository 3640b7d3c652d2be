package api

import (
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/accounts"
	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/shopspring/decimal"
)

// timestampLayout matches what browsers produce with Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// amount is written as a JSON number with two decimal places.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(domain.FormatAmount(decimal.Decimal(a))), nil
}

type transferRequest struct {
	SenderAccountNo   string            `json:"senderAccountNo"`
	ReceiverAccountNo string            `json:"receiverAccountNo"`
	Amount            decimal.Decimal   `json:"amount"`
	UserID            domain.CustomerID `json:"userId"`
}

type automatedTransferRequest struct {
	transferRequest
	ReceiverCustomerID domain.CustomerID `json:"receiverCustomerId"`
	Note               string            `json:"note"`
}

type automatedTransferResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
	Amount        amount `json:"amount"`
	RecipientName string `json:"recipientName"`
	SenderBalance amount `json:"senderBalance"`
	Timestamp     string `json:"timestamp"`
}

type billRequest struct {
	UserID      domain.CustomerID `json:"userId"`
	BillerName  string            `json:"billerName"`
	Category    string            `json:"category"`
	Amount      decimal.Decimal   `json:"amount"`
	FromAccount string            `json:"fromAccount"`
}

type validateRequest struct {
	CustomerID domain.CustomerID `json:"customerId"`
	AccountNo  string            `json:"accountNo"`
}

type validateResponse struct {
	Message      string             `json:"message"`
	CustomerName string             `json:"customerName"`
	AccountType  domain.AccountType `json:"accountType"`
}

type searchResponse struct {
	CustomerID   domain.CustomerID `json:"Cust_ID"`
	Name         string            `json:"Name"`
	MobileNumber string            `json:"Mobile_Number"`
	Email        string            `json:"Email"`
	AccountNo    string            `json:"accountNo"`
}

type accountResponse struct {
	AccountNo string             `json:"Account_No"`
	Type      domain.AccountType `json:"Acc_Type"`
	Balance   amount             `json:"Balance"`
}

type summaryResponse struct {
	Accounts        []accountResponse `json:"accounts"`
	MonthlyExpenses amount            `json:"monthlyExpenses"`
	BranchName      string            `json:"branchName"`
	IFSCCode        string            `json:"ifscCode"`
}

func newSummaryResponse(s accounts.Summary) summaryResponse {
	resp := summaryResponse{
		Accounts:        make([]accountResponse, 0, len(s.Accounts)),
		MonthlyExpenses: amount(s.MonthlyExpenses),
		BranchName:      s.Branch.Name,
		IFSCCode:        s.Branch.IFSC,
	}
	for _, a := range s.Accounts {
		resp.Accounts = append(resp.Accounts, accountResponse{AccountNo: a.No, Type: a.Type, Balance: amount(a.Balance)})
	}
	return resp
}

type historyEntry struct {
	ID               int64     `json:"id"`
	Amount           amount    `json:"amount"`
	Date             time.Time `json:"date"`
	Type             string    `json:"type"`
	DetailsPrimary   string    `json:"details_primary"`
	DetailsSecondary string    `json:"details_secondary"`
	Status           string    `json:"status,omitempty"`
}

func newHistory(entries []accounts.Entry) []historyEntry {
	resp := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyEntry{
			ID:               e.ID,
			Amount:           amount(e.Amount),
			Date:             e.Date,
			Type:             e.Type,
			DetailsPrimary:   e.DetailsPrimary,
			DetailsSecondary: e.DetailsSecondary,
			Status:           string(e.Status),
		})
	}
	return resp
}
