package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/andrepetsch/secret-library/internal/lifecycle"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportHandler 负责目录导出接口
type ExportHandler struct {
	DB      *gorm.DB
	Manager *lifecycle.Manager
}

func NewExportHandler(db *gorm.DB, manager *lifecycle.Manager) *ExportHandler {
	return &ExportHandler{DB: db, Manager: manager}
}

var exportHeader = []string{"Title", "Author", "Type", "Language", "Publication Date", "Tags", "Formats", "Uploaded By", "Uploaded At"}

type exportRow struct {
	cells [9]string
}

// catalogRows renders the active listing into flat rows.
func (h *ExportHandler) catalogRows() ([]exportRow, error) {
	list, err := h.Manager.ListActive()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}
	tags, err := tagsByMedia(h.DB, ids)
	if err != nil {
		return nil, err
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	rows := make([]exportRow, 0, len(list))
	for i := range list {
		m := &list[i]
		formats := make([]string, 0, len(m.Files))
		for _, f := range m.Files {
			formats = append(formats, f.FileType)
		}
		rows = append(rows, exportRow{cells: [9]string{
			m.Title,
			deref(m.Author),
			m.MediaType,
			deref(m.Language),
			deref(m.PublicationDate),
			strings.Join(tags[m.ID], ", "),
			strings.Join(formats, ", "),
			m.Uploader.DisplayName,
			m.UploadedAt.Format("2006-01-02"),
		}})
	}
	return rows, nil
}

// ExportCSV streams the active catalog as CSV.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	rows, err := h.catalogRows()
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to export catalog")
		return
	}

	fileName := fmt.Sprintf("catalog-%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for i := range rows {
		_ = w.Write(rows[i].cells[:])
	}
	w.Flush()
}

// ExportXLSX streams the active catalog as an Excel workbook.
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	rows, err := h.catalogRows()
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to export catalog")
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Catalog"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to export catalog")
		return
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	for r := range rows {
		for col, v := range rows[r].cells {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	fileName := fmt.Sprintf("catalog-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	if err := f.Write(c.Writer); err != nil {
		// headers already sent; nothing useful left to report
		return
	}
}
