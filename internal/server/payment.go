package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	"github.com/smallbiznis/netbill/internal/providers/pdf"
)

func (s *Server) ApplyPayment(c *gin.Context) {
	var req paymentdomain.ApplyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.Apply(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), result.Events)
	resp := gin.H{"data": result.Payment, "deduplicated": result.Deduplicated}
	if len(failed) > 0 {
		resp["undelivered_events"] = len(failed)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.Refund(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		BillID     string `form:"bill_id"`
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := paymentdomain.ListPaymentsRequest{}
	if billID := strings.TrimSpace(query.BillID); billID != "" {
		req.BillID = &billID
	}
	if customerID := strings.TrimSpace(query.CustomerID); customerID != "" {
		req.CustomerID = &customerID
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		value := paymentdomain.PaymentStatus(status)
		req.Status = &value
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) PaymentReceiptPDF(c *gin.Context) {
	ctx := c.Request.Context()

	payment, err := s.paymentSvc.GetByID(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	bill, err := s.billingSvc.GetByID(ctx, payment.BillID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoiceData, err := s.buildInvoiceData(c, bill)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdfRenderer.RenderReceipt(ctx, pdf.ReceiptData{
		InvoiceData:   invoiceData,
		ReceiptNumber: payment.ReceiptNumber,
		PaymentDate:   payment.PaymentDate.Format("2006-01-02"),
		PaymentMethod: payment.Method,
		AmountPaid:    formatMinor(payment.Amount),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", payment.ReceiptNumber))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if doc != nil {
		_, _ = io.Copy(c.Writer, doc)
	}
}
