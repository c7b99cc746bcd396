// Package roster loads the campaign workbook: the contact list, the
// message pool, and the optional settings sheet.
//
// Workbook layout (same as the operators already use):
//
//	sheet 1: contacts, header row with name/phone columns
//	sheet 2: one message per row, header row skipped (optional)
//	sheet 3: key/value settings, e.g. daily start time (optional)
package roster

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/RenanMaestrya/disparador-outbound/internal/phone"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// Contact is one row of the contact sheet. Phone is free-form human input
// until it passes through phone.Normalizer.
type Contact struct {
	Name  string
	Phone string
}

// Data is everything the workbook supplies to a dispatch run.
type Data struct {
	Contacts []Contact
	Messages []string
	// DailyStart is the optional "HH:MM" daily trigger; empty means
	// dispatch fires immediately on connect.
	DailyStart string
}

// Load reads the workbook at path.
func Load(path string) (*Data, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster: %s has no sheets", path)
	}

	contacts, err := readContacts(f, sheets[0])
	if err != nil {
		return nil, err
	}

	d := &Data{Contacts: contacts}
	if len(sheets) > 1 {
		d.Messages = readMessages(f, sheets[1])
	}
	if len(sheets) > 2 {
		d.DailyStart = readDailyStart(f, sheets[2])
	}
	return d, nil
}

func readContacts(f *excelize.File, sheet string) ([]Contact, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("roster: read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("roster: sheet %q needs a header row and at least one contact", sheet)
	}

	nameCol, phoneCol := -1, -1
	for i, h := range rows[0] {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch {
		case nameCol < 0 && (strings.Contains(lower, "nome") || strings.Contains(lower, "name")):
			nameCol = i
		case phoneCol < 0 && (strings.Contains(lower, "telefone") ||
			strings.Contains(lower, "celular") || strings.Contains(lower, "phone")):
			phoneCol = i
		}
	}
	if phoneCol < 0 {
		return nil, fmt.Errorf("roster: sheet %q has no phone column", sheet)
	}

	var contacts []Contact
	for _, row := range rows[1:] {
		if phoneCol >= len(row) || strings.TrimSpace(row[phoneCol]) == "" {
			continue
		}
		name := "Contato"
		if nameCol >= 0 && nameCol < len(row) && strings.TrimSpace(row[nameCol]) != "" {
			name = strings.TrimSpace(row[nameCol])
		}
		contacts = append(contacts, Contact{
			Name:  name,
			Phone: strings.TrimSpace(row[phoneCol]),
		})
	}
	return contacts, nil
}

func readMessages(f *excelize.File, sheet string) []string {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil
	}
	var msgs []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if m := strings.TrimSpace(row[0]); m != "" {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func readDailyStart(f *excelize.File, sheet string) string {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return ""
	}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row[0]))
		val := strings.TrimSpace(row[1])
		if val == "" {
			continue
		}
		if strings.Contains(key, "horario") || strings.Contains(key, "horário") || strings.Contains(key, "hora") {
			return val
		}
	}
	return ""
}

// FilterValid normalizes every contact phone, returning the contacts that
// passed (with canonical phones) and the ones that were rejected. Invalid
// contacts are logged, never fatal.
func FilterValid(n *phone.Normalizer, contacts []Contact, log logx.Logger) (valid, invalid []Contact) {
	for _, c := range contacts {
		id, err := n.Normalize(c.Phone)
		if err != nil {
			log.Warn("contact dropped: invalid phone",
				logx.String("name", c.Name),
				logx.String("phone", c.Phone),
				logx.Err(err))
			invalid = append(invalid, c)
			continue
		}
		valid = append(valid, Contact{Name: c.Name, Phone: id})
	}
	return valid, invalid
}
