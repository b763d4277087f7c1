package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (p *MarotoRenderer) RenderReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(12, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Bill number: "+data.BillNumber, props.Text{Top: 4}),
			text.New("Date paid: "+data.PaymentDate, props.Text{Top: 8}),
			text.New("Method: "+data.PaymentMethod, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New(data.TenantName, props.Text{Style: fontstyle.Bold}),
			text.New(data.TenantEmail, props.Text{Top: 5}),
		),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold}),
			text.New(data.CustomerName, props.Text{Top: 5}),
			text.New(data.CustomerEmail, props.Text{Top: 9}),
		),
		col.New(6),
	)

	m.AddRow(12,
		text.NewCol(8, "Amount paid", props.Text{Size: 12, Style: fontstyle.Bold}),
		text.NewCol(4, data.AmountPaid, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(8,
		text.NewCol(8, "Remaining balance", props.Text{Size: 9}),
		text.NewCol(4, data.AmountDue, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
