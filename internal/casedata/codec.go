package casedata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// EncodeCSV writes a frame as CSV. Float columns get the shortest
// round-trippable rendering; gota's own writer rounds them to six decimals,
// which loses precision on the rate columns.
func EncodeCSV(w io.Writer, df dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}

	cw := csv.NewWriter(w)
	names := df.Names()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cells := make([][]string, len(names))
	for j, name := range names {
		col := df.Col(name)
		if col.Err != nil {
			return fmt.Errorf("column %s: %w", name, col.Err)
		}
		if col.Type() != series.Float {
			cells[j] = col.Records()
			continue
		}
		floats := col.Float()
		out := make([]string, len(floats))
		for i, f := range floats {
			if math.IsNaN(f) {
				out[i] = "NaN"
				continue
			}
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		cells[j] = out
	}

	row := make([]string, len(names))
	for i := 0; i < df.Nrow(); i++ {
		for j := range names {
			row[j] = cells[j][i]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV reads a frame written by EncodeCSV, restoring the canonical
// column types instead of re-detecting them.
func DecodeCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(columnTypes),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("decode snapshot: %w", df.Err)
	}
	return df, nil
}
