package report

import (
	"encoding/csv"
	"strings"
)

// FieldCount is the fixed width of a sprint record.
const FieldCount = 9

// SprintRecord is one row of the fetch preview.
type SprintRecord struct {
	BoardID         string
	BoardName       string
	SprintID        string
	SprintName      string
	SprintState     string
	StartDate       string
	EndDate         string
	Goal            string
	CustomerOutcome string
}

// ParseRecord maps a preview row onto a SprintRecord. Quoted fields may hold
// commas and a bare quote inside an unquoted field is kept literally; if
// parsing still fails the row is split on the first eight commas instead.
// Missing trailing fields are empty and extra ones are ignored. It never
// fails.
func ParseRecord(line string) SprintRecord {
	fields, err := splitCSV(line)
	if err != nil {
		fields = strings.SplitN(line, ",", FieldCount)
	}
	for len(fields) < FieldCount {
		fields = append(fields, "")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	return SprintRecord{
		BoardID:         fields[0],
		BoardName:       fields[1],
		SprintID:        fields[2],
		SprintName:      fields[3],
		SprintState:     fields[4],
		StartDate:       fields[5],
		EndDate:         fields[6],
		Goal:            fields[7],
		CustomerOutcome: fields[8],
	}
}

// ParseRecords parses every row.
func ParseRecords(rows []string) []SprintRecord {
	out := make([]SprintRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ParseRecord(r))
	}
	return out
}

func splitCSV(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}
