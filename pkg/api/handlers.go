package api

import (
	"fmt"
	"net/http"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/transfers"
	"github.com/gin-gonic/gin"
)

func (s *Server) summary(c *gin.Context) {
	id, err := domain.ParseCustomerID(c.Param("userId"))
	if err != nil {
		respond(c, http.StatusBadRequest, msgInvalidUser)
		return
	}

	summary, err := s.accounts.Summary(c.Request.Context(), id)
	if err != nil {
		logError(c, err, "failed to build account summary")
		respond(c, http.StatusInternalServerError, msgSummaryUnavailable)
		return
	}

	c.JSON(http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) history(c *gin.Context) {
	id, err := domain.ParseCustomerID(c.Param("userId"))
	if err != nil {
		respond(c, http.StatusBadRequest, msgInvalidUser)
		return
	}

	entries, err := s.accounts.History(c.Request.Context(), id)
	if err != nil {
		logError(c, err, "failed to list transaction history")
		respond(c, http.StatusInternalServerError, msgHistoryUnavailable)
		return
	}

	c.JSON(http.StatusOK, newHistory(entries))
}

func (s *Server) searchCustomer(c *gin.Context) {
	result, err := s.recipients.Search(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		status, msg := lookupStatus(err, msgCustomerNotFound, msgSearchDatabase)
		if status == http.StatusInternalServerError {
			logError(c, err, "failed to search customer")
		}
		respond(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, searchResponse{
		CustomerID:   result.Customer.ID,
		Name:         result.Customer.Name,
		MobileNumber: result.Customer.MobileNumber,
		Email:        result.Customer.Email,
		AccountNo:    result.AccountNo,
	})
}

func (s *Server) validateRecipient(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "Customer ID and Account Number are required.")
		return
	}

	recipient, err := s.recipients.Validate(c.Request.Context(), req.CustomerID, req.AccountNo)
	if err != nil {
		status, msg := lookupStatus(err, msgCustomerIDNotFound, msgValidationDatabase)
		if status == http.StatusInternalServerError {
			logError(c, err, "failed to validate recipient")
		}
		respond(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, validateResponse{
		Message:      msgRecipientValidated,
		CustomerName: recipient.CustomerName,
		AccountType:  recipient.AccountType,
	})
}

func (s *Server) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, msgInvalidTransfer)
		return
	}

	_, err := s.transfers.Transfer(c.Request.Context(), transfers.Request{
		UserID:            req.UserID,
		SenderAccountNo:   req.SenderAccountNo,
		ReceiverAccountNo: req.ReceiverAccountNo,
		Amount:            req.Amount,
	})
	if err != nil {
		status, msg := transferStatus(err, msgInternal)
		respond(c, status, msg)
		return
	}

	respond(c, http.StatusOK, msgTransferSuccessful)
}

func (s *Server) automatedTransfer(c *gin.Context) {
	var req automatedTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, msgInvalidTransfer)
		return
	}

	result, err := s.transfers.AutomatedTransfer(c.Request.Context(), transfers.AutomatedRequest{
		Request: transfers.Request{
			UserID:            req.UserID,
			SenderAccountNo:   req.SenderAccountNo,
			ReceiverAccountNo: req.ReceiverAccountNo,
			Amount:            req.Amount,
		},
		ReceiverCustomerID: req.ReceiverCustomerID,
		Note:               req.Note,
	})
	if err != nil {
		status, msg := transferStatus(err, msgAutomatedUnavailable)
		respond(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, automatedTransferResponse{
		Message:       fmt.Sprintf("Successfully transferred ₹%s to %s", domain.FormatAmount(result.Record.Amount), result.RecipientName),
		TransactionID: result.TransactionID,
		Amount:        amount(result.Record.Amount),
		RecipientName: result.RecipientName,
		SenderBalance: amount(result.SenderBalance),
		Timestamp:     result.Timestamp.Format(timestampLayout),
	})
}

func (s *Server) payBill(c *gin.Context) {
	var req billRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, msgInvalidBill)
		return
	}

	_, err := s.transfers.PayBill(c.Request.Context(), transfers.BillRequest{
		UserID:     req.UserID,
		AccountNo:  req.FromAccount,
		BillerName: req.BillerName,
		Category:   req.Category,
		Amount:     req.Amount,
	})
	if err != nil {
		status, msg := billStatus(err)
		respond(c, status, msg)
		return
	}

	respond(c, http.StatusOK, fmt.Sprintf("Successfully paid %s bill.", req.BillerName))
}
