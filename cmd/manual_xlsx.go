package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// manualColumns maps normalized header cells to lead fields.
var manualColumns = map[string]func(l *leadgen.ManualLead, v string){
	"company_name": func(l *leadgen.ManualLead, v string) { l.CompanyName = v },
	"company":      func(l *leadgen.ManualLead, v string) { l.CompanyName = v },
	"phone":        func(l *leadgen.ManualLead, v string) { l.Phone = v },
	"email":        func(l *leadgen.ManualLead, v string) { l.Email = v },
	"e_mail":       func(l *leadgen.ManualLead, v string) { l.Email = v },
	"website":      func(l *leadgen.ManualLead, v string) { l.Website = v },
	"address":      func(l *leadgen.ManualLead, v string) { l.Address = v },
	"city":         func(l *leadgen.ManualLead, v string) { l.City = v },
	"state":        func(l *leadgen.ManualLead, v string) { l.State = v },
	"category":     func(l *leadgen.ManualLead, v string) { l.Category = v },
}

// readManualXLSX reads leads from the first sheet. The first row is the
// header; unknown columns are ignored and blank rows skipped.
func readManualXLSX(path string) ([]leadgen.ManualLead, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "manual: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("manual: %s has no sheets", path)
	}
	rows := f.Sheets[0].Rows
	if len(rows) == 0 {
		return nil, eris.Errorf("manual: %s has no header row", path)
	}

	setters := make([]func(*leadgen.ManualLead, string), len(rows[0].Cells))
	mapped := 0
	for i, cell := range rows[0].Cells {
		if set, ok := manualColumns[headerKey(cell.String())]; ok {
			setters[i] = set
			mapped++
		}
	}
	if mapped == 0 {
		return nil, eris.Errorf("manual: %s header has no known columns", path)
	}

	var leads []leadgen.ManualLead
	for _, row := range rows[1:] {
		var l leadgen.ManualLead
		blank := true
		for i, cell := range row.Cells {
			if i >= len(setters) || setters[i] == nil {
				continue
			}
			v := strings.TrimSpace(cell.String())
			if v == "" {
				continue
			}
			setters[i](&l, v)
			blank = false
		}
		if !blank {
			leads = append(leads, l)
		}
	}
	if len(leads) == 0 {
		return nil, eris.Errorf("manual: %s has no leads", path)
	}
	return leads, nil
}

// headerKey folds "Company Name" and "company-name" to "company_name".
func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("-", " ", "_", " ").Replace(h)
	return strings.Join(strings.Fields(h), "_")
}
