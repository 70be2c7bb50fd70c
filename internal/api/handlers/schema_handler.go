package handlers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/askdb/backend/internal/exec"
	"github.com/askdb/backend/internal/pipeline"
	"github.com/askdb/backend/internal/schema"
	"github.com/askdb/backend/pkg/logger"
)

type SchemaHandler struct {
	engine *pipeline.Engine
}

func NewSchemaHandler(engine *pipeline.Engine) *SchemaHandler {
	return &SchemaHandler{engine: engine}
}

// HandleConnectTest verifies a connection URL is reachable without
// running any query.
func (h *SchemaHandler) HandleConnectTest(c *fiber.Ctx) error {
	connURL, err := parseConnURL(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	if strings.HasPrefix(connURL, "mongodb") {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(connURL))
		if err == nil {
			err = client.Ping(ctx, nil)
			client.Disconnect(context.Background())
		}
		if err != nil {
			return connectFailure(c, err)
		}
	} else {
		db, err := exec.OpenPostgres(connURL)
		if err == nil {
			err = db.PingContext(ctx)
			db.Close()
		}
		if err != nil {
			return connectFailure(c, err)
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleOverview loads and returns the full schema for a connection.
// When the vector ranker is enabled, the loaded schema is indexed as a
// side effect so subsequent questions can be ranked.
func (h *SchemaHandler) HandleOverview(c *fiber.Ctx) error {
	connURL, err := parseConnURL(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	var full schema.Schema
	if strings.HasPrefix(connURL, "mongodb") {
		full, err = loadMongoSchema(ctx, connURL)
	} else {
		full, err = loadPostgresSchema(ctx, connURL)
	}
	if err != nil {
		return connectFailure(c, err)
	}

	if ierr := h.engine.IndexSchema(ctx, full); ierr != nil {
		logger.Warn("Failed to index schema for ranking", zap.Error(ierr))
	}

	elements := make([]fiber.Map, 0, len(full))
	for _, el := range full {
		fields := make([]fiber.Map, 0, len(el.Fields))
		for _, f := range el.Fields {
			fields = append(fields, fiber.Map{
				"name":     f.Name,
				"type":     f.Type,
				"nullable": f.Nullable,
			})
		}
		elements = append(elements, fiber.Map{
			"name":   el.Name,
			"fields": fields,
		})
	}

	return c.JSON(fiber.Map{"elements": elements})
}

func loadPostgresSchema(ctx context.Context, connURL string) (schema.Schema, error) {
	db, err := exec.OpenPostgres(connURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return schema.NewPostgresSource(db).Load(ctx)
}

func loadMongoSchema(ctx context.Context, connURL string) (schema.Schema, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return nil, err
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return nil, errMissingDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connURL))
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(context.Background())

	return schema.NewMongoSource(client.Database(dbName), 0).Load(ctx)
}

var errMissingDatabase = fiber.NewError(fiber.StatusBadRequest, "connection URL must name a database")

func parseConnURL(c *fiber.Ctx) (string, error) {
	var req struct {
		Connection struct {
			URL string `json:"url"`
		} `json:"connection"`
	}
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Connection.URL == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "connection URL is required")
	}
	return req.Connection.URL, nil
}

func connectFailure(c *fiber.Ctx, err error) error {
	logger.Warn("Connection attempt failed", zap.Error(err))
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "cannot reach database: " + err.Error(),
	})
}
