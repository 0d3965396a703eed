package ui

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rnadash/adapters/tabular"
	"rnadash/app"
	"rnadash/internal/errors"
	"rnadash/internal/views"
)

// handleStartRun accepts the two multipart uploads, stages them to a
// per-run temp dir, and starts the pipeline. Responds 202 with the run ID;
// progress flows over the SSE stream.
func (s *Server) handleStartRun(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Upload.MaxUploadBytes)

	countsFile, err := c.FormFile("counts")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.InvalidInput("counts file is required")))
		return
	}
	samplesFile, err := c.FormFile("samples")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.InvalidInput("samples file is required")))
		return
	}

	countsExt := fileExt(countsFile.Filename)
	samplesExt := fileExt(samplesFile.Filename)
	// Reject unreadable formats before staging anything.
	for _, ext := range []string{countsExt, samplesExt} {
		if _, err := tabular.DelimiterFor(ext); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(err))
			return
		}
	}

	staging, err := os.MkdirTemp(s.cfg.Upload.TempDir, "run-*")
	if err != nil {
		s.logger.Error("[Upload] Failed to create staging dir: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody(errors.InternalError("failed to stage upload")))
		return
	}

	countsPath := filepath.Join(staging, "counts."+countsExt)
	samplesPath := filepath.Join(staging, "samples."+samplesExt)
	if err := c.SaveUploadedFile(countsFile, countsPath); err != nil {
		os.RemoveAll(staging)
		c.JSON(http.StatusBadRequest, errorBody(errors.IOError(countsFile.Filename, err)))
		return
	}
	if err := c.SaveUploadedFile(samplesFile, samplesPath); err != nil {
		os.RemoveAll(staging)
		c.JSON(http.StatusBadRequest, errorBody(errors.IOError(samplesFile.Filename, err)))
		return
	}

	runID, err := s.analysis.StartRun(app.UploadPair{
		CountsPath:  countsPath,
		CountsExt:   countsExt,
		SamplesPath: samplesPath,
		SamplesExt:  samplesExt,
		TempDir:     staging,
	})
	if err != nil {
		os.RemoveAll(staging)
		c.JSON(http.StatusConflict, errorBody(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) handleCancelRun(c *gin.Context) {
	if !s.analysis.Cancel() {
		c.JSON(http.StatusConflict, gin.H{"cancelled": false, "message": "no run in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.analysis.Status())
}

func (s *Server) handleTable(c *gin.Context) {
	q := views.TableQuery{
		Page:            intQuery(c, "page", 1),
		PerPage:         intQuery(c, "per_page", 25),
		SortBy:          c.Query("sort"),
		Descending:      c.Query("order") == "desc",
		SignificantOnly: c.Query("significant") == "true",
		Search:          c.Query("search"),
	}
	page, err := s.views.Table(q)
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleSummary(c *gin.Context) {
	page, err := s.views.Table(views.TableQuery{PerPage: 1})
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	conditions, err := s.views.ConditionSummary()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contrast": page.Contrast, "summary": page.Summary, "conditions": conditions})
}

func (s *Server) handleVolcano(c *gin.Context) {
	data, err := s.views.Volcano()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleHeatmap(c *gin.Context) {
	data, err := s.views.Heatmap()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handlePCA(c *gin.Context) {
	data, err := s.views.PCA()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleDistance(c *gin.Context) {
	data, err := s.views.SampleDistance()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleMA(c *gin.Context) {
	data, err := s.views.MAPlot()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleDispersion(c *gin.Context) {
	data, err := s.views.DispersionPlot()
	if err != nil {
		s.renderViewError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// renderViewError maps view failures to responses. Missing data is not an
// error for a plot panel: the page shows a placeholder, so the endpoint
// answers 200 with a no-data marker.
func (s *Server) renderViewError(c *gin.Context, err error) {
	if errors.HasCode(err, errors.CodeNoData) {
		c.JSON(http.StatusOK, gin.H{"status": "no_data", "message": err.Error()})
		return
	}
	if errors.HasCode(err, errors.CodeInvalidInput) {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	s.logger.Error("[View] %v", err)
	c.JSON(http.StatusInternalServerError, errorBody(err))
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error(), "code": errors.GetCode(err)}
}

func fileExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
