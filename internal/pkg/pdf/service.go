// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// Service handles PDF generation
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

// ReceiptData represents the data passed to the receipt template
type ReceiptData struct {
	ReceiptNumber string             `json:"receipt_number"`
	ReceiptDate   string             `json:"receipt_date"`
	PlacedDate    string             `json:"placed_date"`
	Currency      string             `json:"currency"`
	Cart          *cart.ShoppingCart `json:"cart"`
	Lines         []ReceiptLine      `json:"lines"`
	Total         string             `json:"total"`
	PaymentMethod string             `json:"payment_method"`
	Company       CompanyInfo        `json:"company"`
}

// ReceiptLine is one printed line item
type ReceiptLine struct {
	Name      string `json:"name"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// GenerateReceipt generates a PDF receipt for a settled cart
func (s *Service) GenerateReceipt(c *cart.ShoppingCart) (*bytes.Buffer, error) {
	if !c.HasReceipt() {
		return nil, fmt.Errorf("cart %d has no receipt in status %s", c.ID, c.Status)
	}

	htmlContent, err := s.RenderReceiptHTML(c)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)
	pdfg.Title.Set(fmt.Sprintf("Receipt %d", c.ID))

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// RenderReceiptHTML renders the receipt page that GenerateReceipt converts
func (s *Service) RenderReceiptHTML(c *cart.ShoppingCart) (string, error) {
	data := ReceiptData{
		ReceiptNumber: fmt.Sprintf("RCPT-%06d", c.ID),
		ReceiptDate:   time.Now().Format("January 2, 2006"),
		Currency:      s.config.Checkout.Currency,
		Cart:          c,
		Total:         c.TotalPrice.StringFixed(2),
		PaymentMethod: paymentMethodLabel(c.PaymentMethod),
		Company: CompanyInfo{
			Name:    s.config.Receipt.CompanyName,
			Address: s.config.Receipt.CompanyAddress,
			Email:   s.config.Receipt.CompanyEmail,
			Website: s.config.Receipt.CompanyWebsite,
		},
	}
	if c.PlacedDate != nil {
		data.PlacedDate = c.PlacedDate.Format("January 2, 2006")
	}

	for _, order := range c.Orders {
		line := ReceiptLine{
			Quantity: order.Quantity,
			Total:    order.TotalPrice.StringFixed(2),
		}
		if order.Product != nil {
			line.Name = order.Product.Name
			line.Size = string(order.Product.ItemSize)
			line.UnitPrice = order.Product.Price.StringFixed(2)
		}
		data.Lines = append(data.Lines, line)
	}

	tmpl := template.Must(template.New("receipt").Parse(receiptTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func paymentMethodLabel(m cart.PaymentMethod) string {
	switch m {
	case cart.PaymentMethodCreditCard:
		return "Credit or debit card"
	case cart.PaymentMethodIdeal:
		return "iDEAL"
	}
	return string(m)
}

// Receipt HTML template
const receiptTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.ReceiptNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; margin-bottom: 30px; border-bottom: 2px solid #eee; padding-bottom: 20px; }
        .receipt-title { font-size: 28px; font-weight: bold; color: #2563eb; margin-bottom: 10px; }
        .items-table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
        .items-table th, .items-table td { border: 1px solid #ddd; padding: 12px 8px; text-align: left; }
        .items-table th { background-color: #f8f9fa; }
        .num { text-align: right; width: 90px; }
        .total-row { font-size: 18px; font-weight: bold; }
        .status-badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; }
        .status-PAID { background-color: #dcfce7; color: #166534; }
        .status-PENDING { background-color: #fef3c7; color: #92400e; }
        .footer { margin-top: 50px; padding-top: 20px; border-top: 1px solid #eee; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <h1>{{.Company.Name}}</h1>
            {{if .Company.Address}}<p>{{.Company.Address}}</p>{{end}}
            <p>{{.Company.Email}}</p>
            {{if .Company.Website}}<p>{{.Company.Website}}</p>{{end}}
        </div>
        <div style="text-align: right;">
            <div class="receipt-title">RECEIPT</div>
            <p><strong>Receipt #:</strong> {{.ReceiptNumber}}</p>
            <p><strong>Date:</strong> {{.ReceiptDate}}</p>
            {{if .PlacedDate}}<p><strong>Placed:</strong> {{.PlacedDate}}</p>{{end}}
            <p><span class="status-badge status-{{.Cart.Status}}">{{.Cart.Status}}</span></p>
        </div>
    </div>

    <table class="items-table">
        <thead>
            <tr>
                <th>Item</th>
                <th>Size</th>
                <th class="num">Qty</th>
                <th class="num">Price</th>
                <th class="num">Total</th>
            </tr>
        </thead>
        <tbody>
            {{range .Lines}}
            <tr>
                <td><strong>{{.Name}}</strong></td>
                <td>{{.Size}}</td>
                <td class="num">{{.Quantity}}</td>
                <td class="num">{{.UnitPrice}}</td>
                <td class="num">{{.Total}}</td>
            </tr>
            {{end}}
            <tr class="total-row">
                <td colspan="4" class="num">Total ({{.Currency}}):</td>
                <td class="num">{{.Total}}</td>
            </tr>
        </tbody>
    </table>

    {{if .PaymentMethod}}<p><strong>Paid with:</strong> {{.PaymentMethod}}</p>{{end}}
    {{if .Cart.PaymentReference}}<p><strong>Payment reference:</strong> {{.Cart.PaymentReference}}</p>{{end}}

    <div class="footer">
        <p>Thank you for shopping with us!</p>
        <p>Questions about this receipt? Contact us at {{.Company.Email}}</p>
    </div>
</body>
</html>
`
