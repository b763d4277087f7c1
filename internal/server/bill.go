package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	"github.com/smallbiznis/netbill/internal/providers/pdf"
	"github.com/smallbiznis/netbill/pkg/db/pagination"
)

func (s *Server) CreateBill(c *gin.Context) {
	var req billingdomain.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.billingSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), result.Events)
	resp := gin.H{"data": result.Bill}
	if len(failed) > 0 {
		resp["undelivered_events"] = len(failed)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetBill(c *gin.Context) {
	bill, err := s.billingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bill})
}

func (s *Server) ListBills(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := billingdomain.ListBillsRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	}
	if customerID := strings.TrimSpace(query.CustomerID); customerID != "" {
		req.CustomerID = &customerID
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		value := billingdomain.BillStatus(status)
		req.Status = &value
	}

	bills, pageInfo, err := s.billingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bills, "page_info": pageInfo})
}

func (s *Server) CancelBill(c *gin.Context) {
	bill, err := s.billingSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bill})
}

func (s *Server) BillInvoicePDF(c *gin.Context) {
	ctx := c.Request.Context()

	bill, err := s.billingSvc.GetByID(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, err := s.buildInvoiceData(c, bill)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdfRenderer.RenderInvoice(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", bill.BillNumber))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if doc != nil {
		_, _ = io.Copy(c.Writer, doc)
	}
}

func (s *Server) buildInvoiceData(c *gin.Context, bill billingdomain.Bill) (pdf.InvoiceData, error) {
	ctx := c.Request.Context()

	tenant, err := s.tenantSvc.GetByID(ctx, bill.TenantID.String())
	if err != nil {
		return pdf.InvoiceData{}, err
	}
	customer, err := s.customerSvc.GetByID(ctx, bill.CustomerID.String())
	if err != nil {
		return pdf.InvoiceData{}, err
	}

	lines := []pdf.InvoiceLine{
		{Description: "Service charge", Amount: formatMinor(bill.Amount)},
	}
	if bill.LateFee > 0 {
		lines = append(lines, pdf.InvoiceLine{Description: "Late fee", Amount: formatMinor(bill.LateFee)})
	}

	return pdf.InvoiceData{
		TenantName:    tenant.Name,
		TenantEmail:   tenant.Email,
		BillNumber:    bill.BillNumber,
		IssueDate:     bill.CreatedAt.Format("2006-01-02"),
		DueDate:       bill.DueDate.Format("2006-01-02"),
		ServicePeriod: bill.PeriodStart.Format("2006-01-02") + " to " + bill.PeriodEnd.Format("2006-01-02"),
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Lines:         lines,
		Amount:        formatMinor(bill.Amount),
		LateFee:       formatMinor(bill.LateFee),
		Total:         formatMinor(bill.TotalAmount),
		Paid:          formatMinor(bill.PaidAmount),
		AmountDue:     formatMinor(bill.Remaining()),
	}, nil
}

// formatMinor renders minor units as a decimal string.
func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
