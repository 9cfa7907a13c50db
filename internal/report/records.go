package report

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Record is one flat row of an export, keyed by column or attribute name.
type Record map[string]string

const (
	FormatXml         = "XML"
	FormatCsv         = "CSV"
	FormatSpreadsheet = "EXCELOPENXML"
)

// ParseRecords flattens an export payload into records.
func ParseRecords(format string, payload []byte) ([]Record, error) {
	switch strings.ToUpper(format) {
	case FormatXml:
		return parseXmlRecords(payload)
	case FormatCsv:
		return parseCsvRecords(payload)
	case FormatSpreadsheet:
		return parseSpreadsheetRecords(payload)
	}
	return nil, fmt.Errorf("unsupported export format '%s'", format)
}

type xmlElement struct {
	attrs    []xml.Attr
	children bool
}

// parseXmlRecords turns every element that carries attributes but no child elements into
// a record of its attributes, that is the detail rows of a report's xml rendering.
func parseXmlRecords(payload []byte) ([]Record, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.Strict = false

	var stack []*xmlElement
	var records []Record
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				stack[len(stack)-1].children = true
			}
			stack = append(stack, &xmlElement{attrs: t.Attr})
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.children || len(top.attrs) == 0 {
				continue
			}
			record := Record{}
			for _, attr := range top.attrs {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				record[attr.Name.Local] = attr.Value
			}
			if len(record) > 0 {
				records = append(records, record)
			}
		}
	}
	return records, nil
}

// rowsToRecords uses the first non empty row as the header.
func rowsToRecords(rows [][]string) []Record {
	var header []string
	var records []Record
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		if header == nil {
			header = row
			continue
		}

		record := Record{}
		for i, column := range header {
			if column == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = row[i]
			}
			record[column] = value
		}
		records = append(records, record)
	}
	return records
}

func parseCsvRecords(payload []byte) ([]Record, error) {
	// exports carry a byte order mark
	payload = bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	return rowsToRecords(rows), nil
}

func parseSpreadsheetRecords(payload []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet '%s': %w", sheets[0], err)
	}
	return rowsToRecords(rows), nil
}
