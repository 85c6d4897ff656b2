package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-magnet/internal/model"
)

// SheetName is the worksheet holding the leads in XLSX exports.
const SheetName = "Qualified Leads"

// FileSink writes leads to a timestamped file in a directory.
type FileSink struct {
	dir    string
	prefix string
	format string
	now    func() time.Time
}

// NewCSVSink writes {dir}/{prefix}_{YYYYmmdd_HHMMSS}.csv.
func NewCSVSink(dir, prefix string) *FileSink {
	return newFileSink(dir, prefix, "csv")
}

// NewXLSXSink writes {dir}/{prefix}_{YYYYmmdd_HHMMSS}.xlsx.
func NewXLSXSink(dir, prefix string) *FileSink {
	return newFileSink(dir, prefix, "xlsx")
}

func newFileSink(dir, prefix, format string) *FileSink {
	if prefix == "" {
		prefix = "qualified_leads"
	}
	return &FileSink{dir: dir, prefix: prefix, format: format, now: time.Now}
}

// Name implements Sink.
func (s *FileSink) Name() string { return s.format }

// Path returns the file path for a run finished at t.
func (s *FileSink) Path(t time.Time) string {
	return filepath.Join(s.dir, s.prefix+"_"+t.Format("20060102_150405")+"."+s.format)
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, res *model.RunResult) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", s.dir)
	}
	path := s.Path(s.now())
	rows := BuildRows(res)

	var err error
	switch s.format {
	case "xlsx":
		err = writeXLSX(path, rows)
	default:
		err = writeCSV(path, rows)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, rows []Row) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "export: marshal csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

func writeXLSX(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r.Values() {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
