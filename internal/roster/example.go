package roster

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// CreateExample writes a starter workbook so a first run has something to
// edit instead of an opaque "file not found".
func CreateExample(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const contactsSheet = "Contatos"
	if err := f.SetSheetName(f.GetSheetName(0), contactsSheet); err != nil {
		return fmt.Errorf("roster: rename sheet: %w", err)
	}
	contactRows := [][]any{
		{"Nome", "Telefone"},
		{"João Silva", "11999887766"},
		{"Maria Santos", "21988776655"},
		{"Pedro Costa", "31977665544"},
	}
	if err := writeRows(f, contactsSheet, contactRows); err != nil {
		return err
	}

	const messagesSheet = "Mensagens"
	if _, err := f.NewSheet(messagesSheet); err != nil {
		return fmt.Errorf("roster: add sheet: %w", err)
	}
	messageRows := [][]any{
		{"Mensagem"},
		{"Olá! Tudo bem? Esta é uma mensagem de teste."},
		{"Oi! Como você está? Espero que esteja tudo bem!"},
		{"Olá! Que tal? Tenha um ótimo dia!"},
	}
	if err := writeRows(f, messagesSheet, messageRows); err != nil {
		return err
	}

	const settingsSheet = "Configurações"
	if _, err := f.NewSheet(settingsSheet); err != nil {
		return fmt.Errorf("roster: add sheet: %w", err)
	}
	settingsRows := [][]any{
		{"Configuração", "Valor"},
		{"Horário de Início", "09:00"},
		{"", "(deixe vazio para envio imediato)"},
	}
	if err := writeRows(f, settingsSheet, settingsRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("roster: save %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("roster: write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
