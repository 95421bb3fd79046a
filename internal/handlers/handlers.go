package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Brownie44l1/depth-api/internal/inference"
	"github.com/Brownie44l1/depth-api/internal/model"
)

const DefaultMaxBodyBytes = 4 << 10

// ErrRequestFormat marks a body that is not a valid prediction request.
var ErrRequestFormat = errors.New("invalid request")

// Scorer produces a depth score for one feature pair.
type Scorer interface {
	Run(ctx context.Context, bpm, rmssd float32) (float32, error)
}

type Handler struct {
	scorer       Scorer
	thresholds   inference.Thresholds
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewHandler(scorer Scorer, thresholds inference.Thresholds, maxBodyBytes int64, logger *zap.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scorer:       scorer,
		thresholds:   thresholds,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := h.logger.With(zap.String("request_id", RequestID(r.Context())))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		logger.Debug("failed to read request body", zap.Error(err))
		writeError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := decodeRequest(body)
	if err != nil {
		logger.Info("rejected request", zap.Error(err))
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	score, err := h.scorer.Run(r.Context(), *req.BPM, *req.RMSSD)
	if err != nil {
		h.evaluationFailed(w, r, logger, err)
		return
	}

	writeJSON(w, model.PredictionResponse{
		DepthScore: score,
		Status:     h.thresholds.Classify(score),
	}, http.StatusOK)
}

func (h *Handler) evaluationFailed(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, inference.ErrTimeout):
		logger.Warn("prediction timed out", zap.Error(err))
		writeError(w, "Prediction timed out", http.StatusGatewayTimeout)
	case r.Context().Err() != nil:
		// the client is gone, nobody will read a response
		logger.Debug("client went away during prediction", zap.Error(err))
	default:
		logger.Error("prediction failed", zap.Error(err))
		writeError(w, "Prediction failed", http.StatusInternalServerError)
	}
}

func decodeRequest(body []byte) (*model.PredictionRequest, error) {
	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrRequestFormat, err)
	}
	switch {
	case req.BPM == nil:
		return nil, fmt.Errorf("%w: missing field \"bpm\"", ErrRequestFormat)
	case req.RMSSD == nil:
		return nil, fmt.Errorf("%w: missing field \"rmssd\"", ErrRequestFormat)
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, resp any, status int) {
	b, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, model.ErrorResponse{Error: msg}, status)
}
