package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"geofeatures/internal/models"
	"geofeatures/internal/storage"
)

// FeatureStore is the storage surface the HTTP layer needs.
type FeatureStore interface {
	CreateFeature(ctx context.Context, name string, lat, lon float64) (uuid.UUID, error)
	ProcessFeature(ctx context.Context, id uuid.UUID, bufferM int) error
	GetFeature(ctx context.Context, id uuid.UUID) (*models.FeatureDetail, error)
	FeaturesNear(ctx context.Context, lat, lon, radiusM float64) ([]models.NearbyFeature, error)
}

// Publisher is the subset of kafka.Writer used to enqueue feature ids.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	db       FeatureStore
	producer Publisher
}

func NewServer(cfg *models.Config, db FeatureStore, producer Publisher) *Server {
	r := gin.Default()

	s := &Server{cfg: cfg, router: r, db: db, producer: producer}

	r.POST("/features", s.handleCreateFeature)
	r.POST("/features/:id/buffer", s.handleBufferFeature)
	r.GET("/features/near", s.handleFeaturesNear)
	r.GET("/features/:id", s.handleGetFeature)

	return s
}

func (s *Server) Start() error {
	return s.router.Run(s.cfg.ServerAddr)
}

func (s *Server) Stop() {
	// No shutdown needed for gin
}

// Router exposes the underlying engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type createFeatureRequest struct {
	Name string   `json:"name" binding:"required"`
	Lat  *float64 `json:"lat" binding:"required"`
	Lon  *float64 `json:"lon" binding:"required"`
}

func (s *Server) handleCreateFeature(c *gin.Context) {
	const op = "server.handleCreateFeature"

	var req createFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.db.CreateFeature(c.Request.Context(), req.Name, *req.Lat, *req.Lon)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	// Enqueue for background buffering. The feature row is already
	// committed, so a broken broker degrades to manual processing via
	// POST /features/:id/buffer rather than a failed create.
	err = s.producer.WriteMessages(c.Request.Context(), kafka.Message{Value: []byte(id.String())})
	if err != nil {
		log.Printf("%s: enqueue %s: %v", op, id, err)
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

type bufferFeatureRequest struct {
	BufferM int `json:"buffer_m"`
}

func (s *Server) handleBufferFeature(c *gin.Context) {
	const op = "server.handleBufferFeature"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	req := bufferFeatureRequest{BufferM: s.cfg.DefaultBufferM}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.BufferM <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buffer_m must be positive"})
		return
	}

	err = s.db.ProcessFeature(c.Request.Context(), id, req.BufferM)
	switch {
	case errors.Is(err, storage.ErrFeatureNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyBuffered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "buffer_m": req.BufferM})
	}
}

func (s *Server) handleGetFeature(c *gin.Context) {
	const op = "server.handleGetFeature"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	detail, err := s.db.GetFeature(c.Request.Context(), id)
	if errors.Is(err, storage.ErrFeatureNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleFeaturesNear(c *gin.Context) {
	const op = "server.handleFeaturesNear"

	lat, err := parseFloatQuery(c, "lat")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lon, err := parseFloatQuery(c, "lon")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	radius, err := parseFloatQuery(c, "radius_m")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if radius < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "radius_m must not be negative"})
		return
	}

	features, err := s.db.FeaturesNear(c.Request.Context(), lat, lon, radius)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"features": features})
}

func parseFloatQuery(c *gin.Context, key string) (float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return 0, fmt.Errorf("missing query parameter %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be a number", key)
	}
	return v, nil
}
