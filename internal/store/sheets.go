package store

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valuesAPI is the slice of the Sheets API the store needs. Tests swap in
// an in-memory implementation.
type valuesAPI interface {
	Get(ctx context.Context, readRange string) ([][]interface{}, error)
	Update(ctx context.Context, writeRange string, values [][]interface{}) error
	Append(ctx context.Context, writeRange string, values [][]interface{}) error
	AddSheet(ctx context.Context, title string) error
	SheetTitles(ctx context.Context) ([]string, error)
}

// sheetsValues implements valuesAPI against one spreadsheet.
type sheetsValues struct {
	svc           *sheets.Service
	spreadsheetID string
}

func newSheetsValues(ctx context.Context, spreadsheetID, credentialsFile string) (*sheetsValues, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &sheetsValues{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (s *sheetsValues) Get(ctx context.Context, readRange string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *sheetsValues) Update(ctx context.Context, writeRange string, values [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *sheetsValues) Append(ctx context.Context, writeRange string, values [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (s *sheetsValues) AddSheet(ctx context.Context, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: title},
				},
			},
		},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s *sheetsValues) SheetTitles(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}
