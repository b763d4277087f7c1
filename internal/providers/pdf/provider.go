// Package pdf renders bill invoices and payment receipts. The billing core
// never renders documents itself; handlers build the data and hand it here.
package pdf

import (
	"context"
	"io"
)

type Renderer interface {
	RenderInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
	RenderReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

// InvoiceData is the flattened view of a bill handed to the renderer.
type InvoiceData struct {
	TenantName    string
	TenantEmail   string
	BillNumber    string
	IssueDate     string
	DueDate       string
	ServicePeriod string

	CustomerName  string
	CustomerEmail string

	Lines []InvoiceLine

	Amount    string
	LateFee   string
	Total     string
	Paid      string
	AmountDue string
}

type InvoiceLine struct {
	Description string
	Amount      string
}

// ReceiptData adds the payment facts to the underlying bill view.
type ReceiptData struct {
	InvoiceData
	ReceiptNumber string
	PaymentDate   string
	PaymentMethod string
	AmountPaid    string
}

type NoOpRenderer struct{}

func (NoOpRenderer) RenderInvoice(ctx context.Context, data InvoiceData) (io.Reader, error) {
	return nil, nil
}

func (NoOpRenderer) RenderReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	return nil, nil
}
