// Package remittancexml decodes the XML envelopes presenters upload: a
// <remessa> document carrying titles for protest registration, or a
// <desistencias> document carrying withdrawal requests. Unknown elements are
// ignored; titles missing required fields are dropped with an Issue.
package remittancexml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const dateLayout = "2006-01-02"

type PartyDescriptor struct {
	Name       string
	DocumentID string
	Address    string
	City       string
	StateCode  string
	PostalCode string
}

type TitleDescriptor struct {
	Index     int
	Number    string
	Protocol  string
	Amount    decimal.Decimal
	IssueDate time.Time
	DueDate   time.Time
	Species   string
	Accept    bool
	OurNumber string
	Creditor  PartyDescriptor
	Debtor    PartyDescriptor
}

type WithdrawalDescriptor struct {
	Index       int
	TitleNumber string
	Protocol    string
	Amount      decimal.Decimal
	DebtorName  string
	Reason      string
	Notes       string
}

// Issue is a non-fatal per-title defect: the descriptor is skipped and the
// rest of the envelope is imported.
type Issue struct {
	Index   int
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("title %d: field %s: %s", i.Index, i.Field, i.Message)
}

type Remittance struct {
	Titles []TitleDescriptor
	Issues []Issue
}

type WithdrawalFile struct {
	Withdrawals []WithdrawalDescriptor
	Issues      []Issue
}

type xmlParty struct {
	Name       string `xml:"nome"`
	DocumentID string `xml:"documento"`
	Address    string `xml:"endereco"`
	City       string `xml:"cidade"`
	StateCode  string `xml:"uf"`
	PostalCode string `xml:"cep"`
}

type xmlTitle struct {
	Number    string   `xml:"numero"`
	Protocol  string   `xml:"protocolo"`
	Amount    string   `xml:"valor"`
	IssueDate string   `xml:"data_emissao"`
	DueDate   string   `xml:"data_vencimento"`
	Species   string   `xml:"especie"`
	Accept    string   `xml:"aceite"`
	OurNumber string   `xml:"nosso_numero"`
	Creditor  xmlParty `xml:"credor"`
	Debtor    xmlParty `xml:"devedor"`
}

type xmlRemittance struct {
	XMLName xml.Name   `xml:"remessa"`
	Titles  []xmlTitle `xml:"titulos>titulo"`
}

type xmlWithdrawal struct {
	TitleNumber string   `xml:"numero"`
	Protocol    string   `xml:"protocolo"`
	Amount      string   `xml:"valor"`
	Reason      string   `xml:"motivo"`
	Notes       string   `xml:"observacoes"`
	Debtor      xmlParty `xml:"devedor"`
}

type xmlWithdrawalFile struct {
	XMLName     xml.Name        `xml:"desistencias"`
	Withdrawals []xmlWithdrawal `xml:"desistencia"`
}

// ParseRemittance decodes a <remessa> envelope. An outright malformed
// document fails with domain.ErrMalformed and no titles are imported.
func ParseRemittance(r io.Reader) (*Remittance, error) {
	var doc xmlRemittance
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, domain.WrapError(domain.ErrMalformed, "parse remittance xml", err)
	}

	out := &Remittance{}
	for i, t := range doc.Titles {
		desc, issue := mapTitle(i+1, t)
		if issue != nil {
			out.Issues = append(out.Issues, *issue)
			continue
		}
		out.Titles = append(out.Titles, desc)
	}
	return out, nil
}

// ParseWithdrawals decodes a <desistencias> envelope.
func ParseWithdrawals(r io.Reader) (*WithdrawalFile, error) {
	var doc xmlWithdrawalFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, domain.WrapError(domain.ErrMalformed, "parse withdrawal xml", err)
	}

	out := &WithdrawalFile{}
	for i, w := range doc.Withdrawals {
		desc, issue := mapWithdrawal(i+1, w)
		if issue != nil {
			out.Issues = append(out.Issues, *issue)
			continue
		}
		out.Withdrawals = append(out.Withdrawals, desc)
	}
	return out, nil
}

func mapTitle(index int, t xmlTitle) (TitleDescriptor, *Issue) {
	if strings.TrimSpace(t.Number) == "" {
		return TitleDescriptor{}, &Issue{Index: index, Field: "numero", Message: "required field missing"}
	}
	if strings.TrimSpace(t.Protocol) == "" {
		return TitleDescriptor{}, &Issue{Index: index, Field: "protocolo", Message: "required field missing"}
	}

	amount, err := parseAmount(t.Amount)
	if err != nil {
		return TitleDescriptor{}, &Issue{Index: index, Field: "valor", Message: err.Error()}
	}
	issueDate, err := parseDate(t.IssueDate)
	if err != nil {
		return TitleDescriptor{}, &Issue{Index: index, Field: "data_emissao", Message: err.Error()}
	}
	dueDate, err := parseDate(t.DueDate)
	if err != nil {
		return TitleDescriptor{}, &Issue{Index: index, Field: "data_vencimento", Message: err.Error()}
	}

	return TitleDescriptor{
		Index:     index,
		Number:    strings.TrimSpace(t.Number),
		Protocol:  strings.TrimSpace(t.Protocol),
		Amount:    amount,
		IssueDate: issueDate,
		DueDate:   dueDate,
		Species:   strings.TrimSpace(t.Species),
		Accept:    strings.EqualFold(strings.TrimSpace(t.Accept), "S"),
		OurNumber: strings.TrimSpace(t.OurNumber),
		Creditor:  mapParty(t.Creditor),
		Debtor:    mapParty(t.Debtor),
	}, nil
}

func mapWithdrawal(index int, w xmlWithdrawal) (WithdrawalDescriptor, *Issue) {
	if strings.TrimSpace(w.TitleNumber) == "" {
		return WithdrawalDescriptor{}, &Issue{Index: index, Field: "numero", Message: "required field missing"}
	}
	if strings.TrimSpace(w.Protocol) == "" {
		return WithdrawalDescriptor{}, &Issue{Index: index, Field: "protocolo", Message: "required field missing"}
	}

	amount, err := parseAmount(w.Amount)
	if err != nil {
		return WithdrawalDescriptor{}, &Issue{Index: index, Field: "valor", Message: err.Error()}
	}

	return WithdrawalDescriptor{
		Index:       index,
		TitleNumber: strings.TrimSpace(w.TitleNumber),
		Protocol:    strings.TrimSpace(w.Protocol),
		Amount:      amount,
		DebtorName:  strings.TrimSpace(w.Debtor.Name),
		Reason:      strings.TrimSpace(w.Reason),
		Notes:       strings.TrimSpace(w.Notes),
	}, nil
}

func mapParty(p xmlParty) PartyDescriptor {
	return PartyDescriptor{
		Name:       strings.TrimSpace(p.Name),
		DocumentID: strings.TrimSpace(p.DocumentID),
		Address:    strings.TrimSpace(p.Address),
		City:       strings.TrimSpace(p.City),
		StateCode:  strings.TrimSpace(p.StateCode),
		PostalCode: strings.TrimSpace(p.PostalCode),
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("required field missing")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad amount %q", s)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative amount %q", s)
	}
	return amount, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
