package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgInternal             = "An internal error occurred."
	msgInvalidTransfer      = "Invalid transfer data."
	msgInvalidBill          = "Invalid bill payment data."
	msgInvalidUser          = "Invalid user id."
	msgCustomerNotFound     = "Customer not found"
	msgCustomerIDNotFound   = "Customer ID not found."
	msgNoSavingsAccount     = "Customer found, but has no savings account."
	msgAccountMismatch      = "Account number does not belong to this customer."
	msgTransferMismatch     = "Account number does not belong to the specified customer ID."
	msgInvalidAccount       = "Invalid sender or receiver account."
	msgBillRefused          = "Insufficient funds or invalid account."
	msgRecipientValidated   = "Recipient details validated successfully"
	msgTransferSuccessful   = "Transfer successful!"
	msgSummaryUnavailable   = "Failed to fetch user summary."
	msgHistoryUnavailable   = "Failed to fetch transaction history."
	msgValidationDatabase   = "Database error during validation."
	msgSearchDatabase       = "Database query failed"
	msgAutomatedUnavailable = "An internal error occurred during transfer processing."
)

func respond(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

func logError(c *gin.Context, err error, msg string) {
	logging.FromContext(c.Request.Context()).Error(msg, zap.Error(err))
}

func validationMessage(err error) (string, bool) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	return "", false
}

// transferStatus maps an orchestrator error to the response of the transfer
// endpoints. Every client error is a 400. internal is the message used for
// anything else.
func transferStatus(err error, internal string) (int, string) {
	if msg, ok := validationMessage(err); ok {
		return http.StatusBadRequest, msg
	}

	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, fmt.Sprintf("Insufficient funds. Available balance: ₹%s", domain.FormatAmount(insufficient.Available))
	case errors.Is(err, domain.ErrAccountMismatch):
		return http.StatusBadRequest, msgTransferMismatch
	case errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusBadRequest, msgCustomerIDNotFound
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusBadRequest, msgInvalidAccount
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidTransfer
	}

	return http.StatusInternalServerError, internal
}

func billStatus(err error) (int, string) {
	if msg, ok := validationMessage(err); ok {
		return http.StatusBadRequest, msg
	}
	if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrNotFound) {
		return http.StatusBadRequest, msgBillRefused
	}

	return http.StatusInternalServerError, msgInternal
}

// lookupStatus maps recipient lookups. Missing data is a 404 here.
func lookupStatus(err error, customerMissing, internal string) (int, string) {
	if msg, ok := validationMessage(err); ok {
		return http.StatusBadRequest, msg
	}

	switch {
	case errors.Is(err, domain.ErrNoSavingsAccount):
		return http.StatusNotFound, msgNoSavingsAccount
	case errors.Is(err, domain.ErrAccountMismatch):
		return http.StatusNotFound, msgAccountMismatch
	case errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusNotFound, customerMissing
	}

	return http.StatusInternalServerError, internal
}
