package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/storer"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const storeName = "sheets"

type sheetsStorer struct {
	options       storer.Options
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	// serialises read-modify-write cycles against the sheet
	mtx sync.Mutex
}

func (s *sheetsStorer) ReadAll(ctx context.Context) ([]record.Record, error) {
	header, rows, err := s.read(ctx)
	if err != nil {
		return nil, &storer.StoreReadError{Store: storeName, Err: err}
	}

	records := make([]record.Record, 0, len(rows))

	for i, row := range rows {
		rec, err := storer.FromRow(s.options.Schema, header, row)
		if errors.Is(err, storer.ErrMalformedEmbedding) {
			// the row is re-embedded later rather than failing every read
			slog.WarnContext(ctx, "treating malformed embedding as missing", "id", rec.ID(), "row", i+2, "error", err)
		} else if err != nil {
			return nil, &storer.StoreReadError{Store: storeName, Err: fmt.Errorf("row %d: %w", i+2, err)}
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *sheetsStorer) WriteEmbedding(ctx context.Context, id string, vector []float32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	header, rows, err := s.read(ctx)
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	idCol := slices.Index(header, s.options.Schema.Identifier())
	if idCol < 0 {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: fmt.Errorf("no %q column", s.options.Schema.Identifier())}
	}

	rowIndex := -1
	for i, row := range rows {
		if idCol < len(row) && strings.TrimSpace(row[idCol]) == strings.TrimSpace(id) {
			rowIndex = i + 2
			break
		}
	}

	if rowIndex < 0 {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: storer.ErrRecordNotFound}
	}

	embCol := slices.Index(header, record.ColumnEmbeddings)
	if embCol < 0 {
		embCol = len(header)
		if err := s.update(ctx, s.cell(embCol, 1), record.ColumnEmbeddings); err != nil {
			return &storer.StoreWriteError{Store: storeName, ID: id, Err: fmt.Errorf("failed to add %q column: %w", record.ColumnEmbeddings, err)}
		}
		slog.InfoContext(ctx, "added embeddings column", "sheet", s.sheetName, "column", columnLetter(embCol))
	}

	if err := s.update(ctx, s.cell(embCol, rowIndex), storer.EncodeEmbedding(vector)); err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	return nil
}

func (s *sheetsStorer) AppendRecord(ctx context.Context, rec record.Record) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	header, _, err := s.read(ctx)
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: rec.ID(), Err: err}
	}

	if len(header) == 0 {
		header = storer.Columns(s.options.Schema)
		if err := s.append(ctx, header); err != nil {
			return &storer.StoreWriteError{Store: storeName, ID: rec.ID(), Err: fmt.Errorf("failed to write header: %w", err)}
		}
	}

	if err := s.append(ctx, storer.Row(rec, header)); err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: rec.ID(), Err: err}
	}

	return nil
}

func (s *sheetsStorer) read(ctx context.Context) ([]string, [][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, quote(s.sheetName)).Context(ctx).Do()
	if err != nil {
		return nil, nil, err
	}

	if len(resp.Values) == 0 {
		return nil, nil, nil
	}

	header := cells(resp.Values[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([][]string, 0, len(resp.Values)-1)
	for _, row := range resp.Values[1:] {
		rows = append(rows, cells(row))
	}

	return header, rows, nil
}

func (s *sheetsStorer) update(ctx context.Context, rng string, value string) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]any{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *sheetsStorer) append(ctx context.Context, row []string) error {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, quote(s.sheetName), &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// cell is the A1 reference of a zero-based column and one-based row.
func (s *sheetsStorer) cell(col int, row int) string {
	return fmt.Sprintf("%s!%s%d", quote(s.sheetName), columnLetter(col), row)
}

func quote(sheetName string) string {
	return "'" + strings.ReplaceAll(sheetName, "'", "''") + "'"
}

// columnLetter converts a zero-based column index to A1 letters.
func columnLetter(col int) string {
	letters := ""
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		letters = string(rune('A'+(n-1)%26)) + letters
	}
	return letters
}

func cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch c := v.(type) {
		case nil:
		case string:
			out[i] = c
		case float64:
			out[i] = strconv.FormatFloat(c, 'f', -1, 64)
		case bool:
			out[i] = strings.ToUpper(strconv.FormatBool(c))
		default:
			out[i] = fmt.Sprint(c)
		}
	}
	return out
}

func NewStorer(opts ...storer.Option) storer.Storer {
	options := storer.NewOptions(opts...)

	s := &sheetsStorer{
		options:       options,
		spreadsheetID: options.Location,
		sheetName:     SheetNameFrom(options.Context),
	}

	if len(s.spreadsheetID) == 0 {
		detail := "a spreadsheet id is required for sheets storer"
		slog.ErrorContext(context.Background(), detail)
		panic(detail)
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if file := CredentialsFileFrom(options.Context); len(file) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	clientOpts = append(clientOpts, ClientOptionsFrom(options.Context)...)

	service, err := sheets.NewService(options.Context, clientOpts...)
	if err != nil {
		detail := "failed to create sheets storer client"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	s.service = service

	return s
}
