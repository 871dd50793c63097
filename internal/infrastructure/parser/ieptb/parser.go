// Package ieptb decodes IEPTB-SP cancellation-authorization files: Latin-1
// encoded, CR/LF-delimited records of exactly 127 columns. The first column
// classifies each record: '0' header, '1' detail, '9' trailer.
package ieptb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const lineWidth = 127

const dateLayout = "02012006"

type Header struct {
	PresenterCode string
	PresenterName string
	MovementDate  time.Time
	DeclaredCount int
	Sequence      string
}

type Detail struct {
	Line                int
	ProtocolNumber      string
	ProtocolizationDate time.Time
	TitleNumber         string
	DebtorName          string
	Amount              decimal.Decimal
	CancellationKind    string
	BranchAccount       string
	PortfolioOurNumber  string
	ControlNumber       string
	Sequence            string
}

type Trailer struct {
	PresenterCode string
	Sequence      string
}

// Issue is a non-fatal per-record defect: the record is dropped and parsing
// continues.
type Issue struct {
	Line    int
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: field %s: %s", i.Line, i.Field, i.Message)
}

type File struct {
	Header  Header
	Details []Detail
	Trailer Trailer
	Issues  []Issue
}

// Parse reads a whole cancellation-authorization file. A missing or
// undecodable header, or a missing trailer, fails the envelope with
// domain.ErrMalformed; individual bad detail rows are dropped and reported
// as Issues.
func Parse(r io.Reader) (*File, error) {
	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))

	var (
		f            File
		haveHeader   bool
		haveTrailer  bool
		headerIssues []Issue
		lineNo       int
	)

	for scanner.Scan() {
		lineNo++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		// Columns are character positions; decoded accented characters
		// span multiple bytes, so records are handled as rune slices.
		line := []rune(text)
		if len(line) < lineWidth {
			line = append(line, []rune(strings.Repeat(" ", lineWidth-len(line)))...)
		}

		switch line[0] {
		case '0':
			header, issues := parseHeader(line, lineNo)
			f.Issues = append(f.Issues, issues...)
			if len(issues) == 0 {
				f.Header = header
				haveHeader = true
			} else {
				headerIssues = append(headerIssues, issues...)
			}
		case '1':
			detail, issue := parseDetail(line, lineNo)
			if issue != nil {
				f.Issues = append(f.Issues, *issue)
				continue
			}
			f.Details = append(f.Details, detail)
		case '9':
			f.Trailer = Trailer{
				PresenterCode: field(line, 1, 4),
				Sequence:      field(line, 122, 127),
			}
			haveTrailer = true
		default:
			f.Issues = append(f.Issues, Issue{
				Line:    lineNo,
				Field:   "record_type",
				Message: fmt.Sprintf("unknown record type %q", line[0]),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTransport, "read cancellation file", err)
	}

	if !haveHeader {
		if len(headerIssues) > 0 {
			return nil, domain.WrapError(domain.ErrMalformed, "parse cancellation file",
				fmt.Errorf("header record undecodable: %s", joinIssues(headerIssues)))
		}
		return nil, domain.WrapError(domain.ErrMalformed, "parse cancellation file", errors.New("header record missing"))
	}
	if !haveTrailer {
		return nil, domain.WrapError(domain.ErrMalformed, "parse cancellation file", errors.New("trailer record missing"))
	}
	return &f, nil
}

func parseHeader(line []rune, lineNo int) (Header, []Issue) {
	var issues []Issue

	movement, err := parseDate(field(line, 49, 57))
	if err != nil {
		issues = append(issues, Issue{Line: lineNo, Field: "movement_date", Message: err.Error()})
	}
	count, err := strconv.Atoi(zeroWhenBlank(field(line, 57, 62)))
	if err != nil {
		issues = append(issues, Issue{Line: lineNo, Field: "declared_count", Message: err.Error()})
	}

	return Header{
		PresenterCode: field(line, 1, 4),
		PresenterName: field(line, 4, 49),
		MovementDate:  movement,
		DeclaredCount: count,
		Sequence:      field(line, 122, 127),
	}, issues
}

func parseDetail(line []rune, lineNo int) (Detail, *Issue) {
	protocolized, err := parseDate(field(line, 11, 19))
	if err != nil {
		return Detail{}, &Issue{Line: lineNo, Field: "protocolization_date", Message: err.Error()}
	}

	amount, err := parseAmount(field(line, 75, 89))
	if err != nil {
		return Detail{}, &Issue{Line: lineNo, Field: "amount", Message: err.Error()}
	}

	return Detail{
		Line:                lineNo,
		ProtocolNumber:      field(line, 1, 11),
		ProtocolizationDate: protocolized,
		TitleNumber:         field(line, 19, 30),
		DebtorName:          field(line, 30, 75),
		Amount:              amount,
		CancellationKind:    field(line, 89, 90),
		BranchAccount:       field(line, 90, 102),
		PortfolioOurNumber:  field(line, 102, 114),
		ControlNumber:       field(line, 116, 122),
		Sequence:            field(line, 122, 127),
	}, nil
}

func joinIssues(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

func field(line []rune, from, to int) string {
	return strings.TrimSpace(string(line[from:to]))
}

func zeroWhenBlank(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want DDMMYYYY", s)
	}
	return t, nil
}

// parseAmount decodes the 14-digit zero-padded amount field; the last two
// digits are cents.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	cents, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("non-numeric amount %q", s)
	}
	if cents < 0 {
		return decimal.Decimal{}, fmt.Errorf("negative amount %q", s)
	}
	return decimal.New(cents, -2), nil
}
