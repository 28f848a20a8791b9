// Package ingest normalizes external transaction sources into model
// transactions at the boundary, so the engine never branches on source shape.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Required CSV columns; id and type are optional.
var requiredColumns = []string{"date", "description", "amount"}

var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"2006-01-02T15:04:05Z07:00",
}

// ReadCSV parses a statement export into transactions. The first row must be
// a header naming at least date, description, and amount (case-insensitive,
// any order); id and type columns are picked up when present. Rows missing an
// id get a deterministic one derived from the row content.
func ReadCSV(r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: header row required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var txns []model.Transaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		txn, err := parseRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

func parseRecord(record []string, columns map[string]int) (model.Transaction, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(field("date"))
	if err != nil {
		return model.Transaction{}, err
	}

	amountText := field("amount")
	amount, err := strconv.ParseFloat(amountText, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount %q", amountText)
	}

	description := field("description")
	if description == "" {
		return model.Transaction{}, fmt.Errorf("description is required")
	}

	txn := model.Transaction{
		Date:        date,
		ID:          field("id"),
		Description: description,
		Type:        field("type"),
		Amount:      amount,
	}
	if txn.ID == "" {
		txn.ID = txn.GenerateHash()
	}
	return txn, nil
}

func parseDate(text string) (time.Time, error) {
	if text == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, format := range dateFormats {
		if date, err := time.Parse(format, text); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}
