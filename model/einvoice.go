package model

import (
	"fmt"
	"os"
	"strings"

	"github.com/biter777/countries"
	"github.com/shopspring/decimal"
	"github.com/speedata/einvoice"
)

var hundred = decimal.NewFromInt(100)

// countryID returns a two letter alpha code for the given country name.
func countryID(country string) string {
	c := countries.ByName(country)
	if c == countries.Unknown {
		return "DE" // default
	}
	return c.Alpha2()
}

func filterEmpty(ss ...string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// effectiveTaxRate derives the percentage that maps the subtotal onto the
// stored tax amount. The invoice stores one flat tax amount, not per-line
// rates, so the e-invoice carries a single uniform rate.
func (inv *Invoice) effectiveTaxRate() decimal.Decimal {
	if inv.Subtotal.IsZero() {
		return decimal.Zero
	}
	return inv.TaxAmount.Div(inv.Subtotal).Mul(hundred).Round(2)
}

// CreateEInvoiceXML writes an EN16931 XML rendition of a reconciled invoice
// to path. The caller passes an invoice whose totals and status have already
// been reconciled; nothing is recomputed here.
func (s *Store) CreateEInvoiceXML(inv *Invoice, path string) error {
	client, err := s.LoadClient(inv.ClientID)
	if err != nil {
		return err
	}
	biz := s.Config.Business

	var sb strings.Builder
	rate := inv.effectiveTaxRate()

	dueDate := inv.IssueDate
	if inv.DueDate != nil {
		dueDate = *inv.DueDate
	}

	zi := einvoice.Invoice{
		InvoiceNumber:       inv.Number,
		InvoiceTypeCode:     380,
		Profile:             einvoice.CProfileEN16931,
		InvoiceDate:         inv.IssueDate,
		OccurrenceDateTime:  inv.IssueDate,
		InvoiceCurrencyCode: "EUR",
		TaxCurrencyCode:     "EUR",
		Notes: []einvoice.Note{{
			Text: strings.TrimSpace(strings.Join(filterEmpty(inv.Notes), "·")),
		}},
		Seller: einvoice.Party{
			Name:              biz.Name,
			VATaxRegistration: biz.VATID,
			PostalAddress: &einvoice.PostalAddress{
				Line1:        biz.Address1,
				Line2:        biz.Address2,
				City:         biz.City,
				PostcodeCode: biz.ZIP,
				CountryID:    countryID(biz.CountryCode),
			},
			DefinedTradeContact: []einvoice.DefinedTradeContact{{
				EMail: biz.Email,
			}},
		},
		Buyer: einvoice.Party{
			Name: client.Name,
			PostalAddress: &einvoice.PostalAddress{
				Line1:        client.Address,
				City:         client.City,
				PostcodeCode: client.PostalCode,
				CountryID:    countryID(client.Country),
			},
		},
		PaymentMeans: []einvoice.PaymentMeans{
			{
				TypeCode:                                      30,
				PayeePartyCreditorFinancialAccountIBAN:        biz.BankIBAN,
				PayeePartyCreditorFinancialAccountName:        biz.BankName,
				PayeeSpecifiedCreditorFinancialInstitutionBIC: biz.BankBIC,
			},
		},
		SpecifiedTradePaymentTerms: []einvoice.SpecifiedTradePaymentTerms{{
			DueDate: dueDate,
		}},
	}

	for i, li := range inv.LineItems {
		zi.InvoiceLines = append(zi.InvoiceLines, einvoice.InvoiceLine{
			LineID:                   fmt.Sprintf("%d", i+1),
			ItemName:                 li.Description,
			BilledQuantity:           li.Quantity,
			BilledQuantityUnit:       "C62",
			NetPrice:                 li.UnitPrice,
			TaxRateApplicablePercent: rate,
			Total:                    li.LineTotal,
			TaxTypeCode:              "VAT",
			TaxCategoryCode:          "S",
		})
	}
	// An invoice-level discount is carried as a negative line so the
	// document total matches the reconciled total_amount.
	if inv.Discount.GreaterThan(decimal.Zero) {
		zi.InvoiceLines = append(zi.InvoiceLines, einvoice.InvoiceLine{
			LineID:                   fmt.Sprintf("%d", len(inv.LineItems)+1),
			ItemName:                 "Discount",
			BilledQuantity:           decimal.NewFromInt(1),
			BilledQuantityUnit:       "C62",
			NetPrice:                 inv.Discount.Neg(),
			TaxRateApplicablePercent: rate,
			Total:                    inv.Discount.Neg(),
			TaxTypeCode:              "VAT",
			TaxCategoryCode:          "S",
		})
	}
	zi.UpdateApplicableTradeTax(nil)
	zi.UpdateTotals()

	if err := zi.Write(&sb); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(sb.String()), 0644)
}
