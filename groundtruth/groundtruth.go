// Package groundtruth loads ground-truth clip tables from CSV files and
// splits them into cross-validation folds.
package groundtruth

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/Noofbiz/posebatch/datasets"
)

// Row is one line of a ground-truth CSV. Only clip_id and action are
// required; fold defaults to 0 and path to "<clip_id>.csv".
type Row struct {
	ClipID  string `csv:"clip_id"`
	Action  int    `csv:"action"`
	Fold    int    `csv:"fold"`
	Path    string `csv:"path"`
	Subject string `csv:"subject"`
}

// CSVProvider serves the folds of a single ground-truth CSV. The validation
// subset of fold k is every row whose fold column equals k, the train subset
// is everything else.
type CSVProvider struct {
	// Path of the ground-truth CSV.
	Path string

	// Dir is where derived artifacts are written. Defaults to the CSV's
	// directory.
	Dir string

	rows []Row
	kind datasets.IDKind
}

// NewCSVProvider reads the ground truth at path.
func NewCSVProvider(path, dataDir string) (*CSVProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ground truth %s: %w", path, err)
	}
	defer f.Close()

	var rows []Row
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse ground truth %s: %w", path, err)
	}
	if dataDir == "" {
		dataDir = filepath.Dir(path)
	}

	p := &CSVProvider{Path: path, Dir: dataDir, rows: rows, kind: datasets.IntIDs}
	for i := range p.rows {
		r := &p.rows[i]
		r.ClipID = strings.TrimSpace(r.ClipID)
		if r.ClipID == "" {
			return nil, fmt.Errorf("ground truth %s row %d: empty clip_id", path, i+1)
		}
		if _, err := strconv.ParseInt(r.ClipID, 10, 64); err != nil {
			p.kind = datasets.StringIDs
		}
		if r.Path == "" {
			r.Path = r.ClipID + ".csv"
		}
		if !filepath.IsAbs(r.Path) {
			r.Path = filepath.Join(filepath.Dir(path), r.Path)
		}
	}
	return p, nil
}

// DataDir implements datasets.Provider.
func (p *CSVProvider) DataDir() string { return p.Dir }

// Folds returns the distinct fold numbers in file order.
func (p *CSVProvider) Folds() []int {
	seen := make(map[int]bool)
	var folds []int
	for _, r := range p.rows {
		if !seen[r.Fold] {
			seen[r.Fold] = true
			folds = append(folds, r.Fold)
		}
	}
	return folds
}

// TrainGT implements datasets.Provider.
func (p *CSVProvider) TrainGT(fold int) (*datasets.Table, error) {
	return p.table(func(r Row) bool { return r.Fold != fold })
}

// ValGT implements datasets.Provider.
func (p *CSVProvider) ValGT(fold int) (*datasets.Table, error) {
	return p.table(func(r Row) bool { return r.Fold == fold })
}

func (p *CSVProvider) table(keep func(Row) bool) (*datasets.Table, error) {
	var records []datasets.ClipRecord
	for _, r := range p.rows {
		if !keep(r) {
			continue
		}
		id, err := datasets.ParseClipID(r.ClipID, p.kind)
		if err != nil {
			return nil, err
		}
		rec := datasets.ClipRecord{ID: id, Action: r.Action, Path: r.Path}
		if r.Subject != "" {
			rec.Meta = map[string]string{"subject": r.Subject}
		}
		records = append(records, rec)
	}
	t, err := datasets.NewTable(records)
	if err != nil {
		return nil, fmt.Errorf("ground truth %s: %w", p.Path, err)
	}
	return t, nil
}
