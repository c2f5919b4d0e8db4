package strategy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/extract"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
)

// maxDocumentBytes caps document downloads. Official bulletins are small;
// anything bigger is the wrong file.
const maxDocumentBytes = 32 << 20

// numericToken matches a price-like token inside a report line.
var numericToken = regexp.MustCompile(`-?\d[\d.,]*`)

// Document acquires indicator values from downloadable reports: PDF bulletins
// and XLSX tables, over HTTP or FTP.
type Document struct {
	client  *http.Client
	timeout time.Duration
}

func NewDocument(timeout time.Duration) *Document {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Document{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (d *Document) Name() string { return "document" }

func (d *Document) Execute(ctx context.Context, src model.Source) (*Payload, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: bad url for %s", src.ID)
	}

	var data []byte
	if u.Scheme == "ftp" {
		data, err = d.fetchFTP(ctx, u, src.ID)
	} else {
		data, err = d.fetchHTTP(ctx, src)
	}
	if err != nil {
		return nil, err
	}

	var value string
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".xlsx":
		value, err = extractFromXLSX(data, src)
	default:
		value, err = extractFromPDF(data, src)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("document value extracted",
		zap.String("source", src.ID),
		zap.String("value", value))
	return &Payload{
		Measurement: &model.RawMeasurement{
			AssetID:     src.AssetID,
			RawValue:    value,
			SourceUnit:  src.SourceUnit,
			CollectedAt: time.Now().UTC(),
			Success:     true,
		},
	}, nil
}

func (d *Document) fetchHTTP(ctx context.Context, src model.Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: build request %s", src.ID)
	}
	extract.BrowserHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &resilience.AcquisitionError{Source: src.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("strategy: status %d from %s", resp.StatusCode, src.ID)
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, &resilience.AcquisitionError{Source: src.ID, Err: statusErr}
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: read document %s", src.ID)
	}
	return data, nil
}

func (d *Document) fetchFTP(ctx context.Context, u *url.URL, sourceID string) ([]byte, error) {
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(d.timeout))
	if err != nil {
		return nil, &resilience.AcquisitionError{Source: sourceID, Err: eris.Wrap(err, "strategy: ftp dial")}
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrapf(err, "strategy: ftp login %s", sourceID)
	}

	r, err := conn.Retr(u.Path)
	if err != nil {
		return nil, &resilience.AcquisitionError{Source: sourceID, Err: eris.Wrap(err, "strategy: ftp retr")}
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: ftp read %s", sourceID)
	}
	return data, nil
}

// extractFromPDF pulls the value out of a PDF bulletin: the first numeric
// token after the row label on the line that contains it.
func extractFromPDF(data []byte, src model.Source) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrapf(err, "strategy: open pdf for %s", src.ID)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", eris.Wrapf(err, "strategy: read pdf text for %s", src.ID)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", eris.Wrapf(err, "strategy: read pdf text for %s", src.ID)
	}

	return valueFromLines(string(text), src)
}

// extractFromXLSX scans sheet rows for the row label and reads the configured
// column of the matching row.
func extractFromXLSX(data []byte, src model.Source) (string, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", eris.Wrapf(err, "strategy: open xlsx for %s", src.ID)
	}

	for _, sheet := range file.Sheets {
		for _, row := range sheet.Rows {
			if !rowContains(row, src.RowMatch) {
				continue
			}
			idx := src.ColumnIndex - 1
			if idx < 0 || idx >= len(row.Cells) {
				continue
			}
			value := strings.TrimSpace(row.Cells[idx].String())
			if value != "" {
				return value, nil
			}
		}
	}
	return "", eris.Errorf("strategy: no xlsx row matched %q for %s", src.RowMatch, src.ID)
}

func rowContains(row *xlsx.Row, match string) bool {
	if match == "" {
		return false
	}
	for _, cell := range row.Cells {
		if strings.Contains(cell.String(), match) {
			return true
		}
	}
	return false
}

// valueFromLines finds the line containing the row label and returns its
// ColumnIndex-th numeric token (1-based), defaulting to the first.
func valueFromLines(text string, src model.Source) (string, error) {
	if src.RowMatch == "" {
		return "", eris.Errorf("strategy: document source %s needs a row_match label", src.ID)
	}
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, src.RowMatch) {
			continue
		}
		tokens := numericToken.FindAllString(line, -1)
		if len(tokens) == 0 {
			continue
		}
		idx := src.ColumnIndex - 1
		if idx < 0 || idx >= len(tokens) {
			idx = 0
		}
		return tokens[idx], nil
	}
	return "", eris.Errorf("strategy: no document line matched %q for %s", src.RowMatch, src.ID)
}
