package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"amrkg/predictor"
)

// RegisterHealthRoutes registers the liveness endpoint.
func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

// RegisterModelRoutes registers fingerprint and model management endpoints.
func (s *Server) RegisterModelRoutes(r *gin.Engine) {
	g := r.Group("/api")
	g.GET("/fingerprints", s.handleFingerprints)
	g.GET("/models", s.handleListModels)
	g.POST("/models/reload", s.handleReload)
	g.DELETE("/models/cache", s.handlePurge)
}

// RegisterPredictRoutes registers the prediction endpoint.
func (s *Server) RegisterPredictRoutes(r *gin.Engine) {
	r.POST("/api/predict", s.handlePredict)
}

// FingerprintInfo describes one selectable fingerprint kind.
type FingerprintInfo struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Length  int    `json:"length"`
	Default bool   `json:"default"`
}

func (s *Server) handleFingerprints(c *gin.Context) {
	gen := s.pipeline.Generator()
	kinds := predictor.FingerprintKinds()
	out := make([]FingerprintInfo, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, FingerprintInfo{
			Name:    kind.String(),
			Key:     kind.Key(),
			Length:  gen.Length(kind),
			Default: kind == s.opts.Fingerprint,
		})
	}
	c.JSON(http.StatusOK, gin.H{"fingerprints": out})
}

// ModelInfo describes one artifact manifest found in the store.
type ModelInfo struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	Model       string `json:"model"`
	Cached      bool   `json:"cached"`
}

func (s *Server) handleListModels(c *gin.Context) {
	keys, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list models: " + err.Error()})
		return
	}
	cached := make(map[string]bool)
	for _, key := range s.cache.Keys() {
		cached[key] = true
	}
	models := make([]ModelInfo, 0, len(keys))
	for _, key := range keys {
		kind, model, ok := predictor.ParseArtifactKey(key)
		if !ok {
			continue
		}
		models = append(models, ModelInfo{
			Key:         key,
			Fingerprint: kind.String(),
			Model:       model,
			Cached:      cached[key],
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// ModelRequest names an artifact.
type ModelRequest struct {
	Fingerprint string `json:"fingerprint"`
	Model       string `json:"model"`
}

func (s *Server) handleReload(c *gin.Context) {
	var req ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, model, err := s.resolve(req.Fingerprint, req.Model)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if err := s.cache.Reload(c.Request.Context(), kind, model); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("artifact reloaded", zap.String("key", predictor.ArtifactKey(kind, model)))
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "key": predictor.ArtifactKey(kind, model)})
}

func (s *Server) handlePurge(c *gin.Context) {
	n := s.cache.Purge()
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

// PredictRequest carries SMILES either as a list or as pasted text.
type PredictRequest struct {
	SMILES      []string `json:"smiles"`
	Text        string   `json:"text"`
	Fingerprint string   `json:"fingerprint"`
	Model       string   `json:"model"`
}

// PredictionRow is one row of a prediction response.
type PredictionRow struct {
	SMILES      string  `json:"smiles"`
	Canonical   string  `json:"canonical_smiles"`
	Prediction  string  `json:"prediction"`
	Probability float64 `json:"probability"`
}

// PredictResponse is the JSON body returned by /api/predict.
type PredictResponse struct {
	BatchID     string          `json:"batch_id"`
	Fingerprint string          `json:"fingerprint"`
	Model       string          `json:"model"`
	Results     []PredictionRow `json:"results"`
	Dropped     int             `json:"dropped"`
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, model, err := s.resolve(req.Fingerprint, req.Model)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	inputs := append([]string(nil), req.SMILES...)
	inputs = append(inputs, predictor.ParseSMILESText(req.Text)...)

	batchID := uuid.NewString()
	results, dropped, err := s.pipeline.Run(c.Request.Context(), inputs, kind, model)
	if err != nil {
		s.logger.Warn("prediction failed",
			zap.String("batch_id", batchID),
			zap.String("key", predictor.ArtifactKey(kind, model)),
			zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "batch_id": batchID})
		return
	}
	s.logger.Info("prediction batch",
		zap.String("batch_id", batchID),
		zap.String("key", predictor.ArtifactKey(kind, model)),
		zap.Int("inputs", len(inputs)),
		zap.Int("results", len(results)),
		zap.Int("dropped", dropped))

	if strings.EqualFold(c.Query("format"), "csv") {
		var buf bytes.Buffer
		if err := predictor.WriteResultsCSV(&buf, results); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="predictions.csv"`)
		c.Header("X-Batch-ID", batchID)
		c.Header("X-Dropped", strconv.Itoa(dropped))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	rows := make([]PredictionRow, len(results))
	for i, res := range results {
		rows[i] = PredictionRow{
			SMILES:      res.Structure.Input,
			Canonical:   res.Structure.Canonical,
			Prediction:  string(res.Class),
			Probability: res.Probability,
		}
	}
	c.JSON(http.StatusOK, PredictResponse{
		BatchID:     batchID,
		Fingerprint: kind.String(),
		Model:       model,
		Results:     rows,
		Dropped:     dropped,
	})
}

// resolve fills in the server defaults for an empty fingerprint or model.
func (s *Server) resolve(fingerprint, model string) (predictor.FingerprintKind, string, error) {
	kind := s.opts.Fingerprint
	if fp := strings.TrimSpace(fingerprint); fp != "" {
		parsed, err := predictor.ParseFingerprintKind(fp)
		if err != nil {
			return kind, "", err
		}
		kind = parsed
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = s.opts.Model
	}
	return kind, model, nil
}
