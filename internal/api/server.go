// Package api serves text generation over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/charrnn/internal/inference"
	"github.com/samcharles93/charrnn/internal/logger"
)

// Predictor produces a generated string of length+1 characters.
type Predictor interface {
	Predict(ctx context.Context, length int) (string, error)
}

type Server struct {
	predictor Predictor
	log       logger.Logger
}

func NewServer(predictor Predictor, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		predictor: predictor,
		log:       log,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/:length", s.handlePredict)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(c *echo.Context) error {
	if s.predictor == nil {
		return writeServerError(c, "prediction service not configured")
	}
	length, err := parseLength(c.Param("length"))
	if err != nil {
		return writeFailure(c, err)
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	text, err := s.predictor.Predict(ctx, length)
	if errors.Is(err, inference.ErrInvalidLength) {
		return writeBadRequest(c, err.Error(), "length")
	}
	if err != nil {
		s.log.Error("prediction failed", "length", length, "error", err)
		return writeFailure(c, err)
	}
	return c.String(http.StatusOK, text)
}

func parseLength(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newInvalidRequest("length", "length must be an integer, got "+strconv.Quote(raw))
	}
	if n < 0 {
		return 0, newInvalidRequest("length", "length must not be negative")
	}
	return n, nil
}
