package ui

import (
	"encoding/csv"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"rnadash/domain/expr"
)

var exportHeader = []string{"gene", "base_mean", "log2_fold_change", "lfc_se", "stat", "p_value", "adj_p_value", "dispersion"}

// handleExportCSV streams the full result table as CSV.
func (s *Server) handleExportCSV(c *gin.Context) {
	table, err := s.views.FullResults()
	if err != nil {
		s.renderViewError(c, err)
		return
	}

	filename := exportFilename(table, "csv")
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(exportHeader); err != nil {
		s.logger.Error("[Export] CSV write failed: %v", err)
		return
	}
	for _, r := range table.Rows {
		if err := w.Write(exportRow(r)); err != nil {
			s.logger.Error("[Export] CSV write failed: %v", err)
			return
		}
	}
	w.Flush()
}

// handleExportXLSX writes the full result table as a single-sheet workbook.
func (s *Server) handleExportXLSX(c *gin.Context) {
	table, err := s.views.FullResults()
	if err != nil {
		s.renderViewError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)
	for col, name := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, name)
	}
	for i, r := range table.Rows {
		values := []interface{}{
			string(r.Gene),
			exportNum(r.BaseMean),
			exportNum(r.Log2FoldChange),
			exportNum(r.LfcSE),
			exportNum(r.Stat),
			exportNum(r.PValue),
			exportNum(r.AdjPValue),
			exportNum(r.Dispersion),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := exportFilename(table, "xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		s.logger.Error("[Export] XLSX write failed: %v", err)
	}
}

func exportFilename(table *expr.ResultTable, ext string) string {
	contrast := strings.ReplaceAll(table.Contrast, " ", "_")
	return fmt.Sprintf("de_results_%s.%s", contrast, ext)
}

func exportRow(r expr.GeneResult) []string {
	return []string{
		string(r.Gene),
		formatFloat(r.BaseMean),
		formatFloat(r.Log2FoldChange),
		formatFloat(r.LfcSE),
		formatFloat(r.Stat),
		formatFloat(r.PValue),
		formatFloat(r.AdjPValue),
		formatFloat(r.Dispersion),
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.6g", v)
}

// exportNum keeps NaN out of spreadsheet cells; they export as the usual NA.
func exportNum(v float64) interface{} {
	if math.IsNaN(v) {
		return "NA"
	}
	return v
}
