package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

var errUnknownConnection = errors.New("unknown connection")

// Server exposes configured SQL sources over the same routes HTTPSource
// reads. The connection-id header names the source; without it the default
// source is used.
type Server struct {
	app    *fiber.App
	cfg    *Config
	logger *slog.Logger
	open   SourceOpener

	defaultSource string

	mu      sync.Mutex
	sources map[string]TableSource
}

func NewServer(cfg *Config, defaultSource string, open SourceOpener, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = discardLogger()
	}
	if open == nil {
		open = NewTableSource
	}
	if defaultSource == "" {
		for _, src := range cfg.SortedSources() {
			if src.Type != SourceHTTP {
				defaultSource = src.Name
				break
			}
		}
	}
	if defaultSource == "" {
		return nil, fmt.Errorf("no sql source configured to serve")
	}
	if src, ok := cfg.Source(defaultSource); !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownConnection, defaultSource)
	} else if src.Type == SourceHTTP {
		return nil, fmt.Errorf("source %s is an http source and cannot be served", defaultSource)
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger.With("component", "server"),
		open:          open,
		defaultSource: defaultSource,
		sources:       make(map[string]TableSource),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "basable",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          s.handleError,
		ReadTimeout:           30 * time.Second,
	})
	s.app.Use(requestid.New(requestid.Config{
		Header:    headerRequestID,
		Generator: uuid.NewString,
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, " + headerSessionID + ", " + headerConnectionID,
	}))
	s.app.Use(s.logRequests)

	core := s.app.Group("/core")
	core.Get("/tables", s.listTables)
	core.Get("/tables/columns/:id", s.tableColumns)
	core.Get("/tables/data/:id", s.tableData)
	core.Patch("/tables/data/:id", s.updateCell)

	return s, nil
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	err := s.app.Shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, src := range s.sources {
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("failed to close source", "source", name, "error", cerr)
		}
	}
	s.sources = make(map[string]TableSource)
	return err
}

// source returns the opened source named by the connection-id header.
func (s *Server) source(c *fiber.Ctx) (TableSource, error) {
	name := c.Get(headerConnectionID)
	if name == "" {
		name = s.defaultSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if src, ok := s.sources[name]; ok {
		return src, nil
	}
	cfg, ok := s.cfg.Source(name)
	if !ok || cfg.Type == SourceHTTP {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%v: %s", errUnknownConnection, name))
	}
	src, err := s.open(cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open source %s: %w", name, err)
	}
	s.sources[name] = src
	s.logger.Info("source opened", "source", name, "type", string(cfg.Type))
	return src, nil
}

func (s *Server) listTables(c *fiber.Ctx) error {
	src, err := s.source(c)
	if err != nil {
		return err
	}
	tables, err := src.ListTables(c.UserContext())
	if err != nil {
		return err
	}
	if tables == nil {
		tables = []TableSummary{}
	}
	return c.JSON(tables)
}

func (s *Server) tableColumns(c *fiber.Ctx) error {
	src, err := s.source(c)
	if err != nil {
		return err
	}
	columns, err := src.FetchColumns(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if columns == nil {
		columns = []ColumnDescriptor{}
	}
	return c.JSON(columns)
}

func (s *Server) tableData(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", s.cfg.PageSize)
	offset := c.QueryInt("offset", 0)
	if limit <= 0 || offset < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive and offset not negative")
	}

	src, err := s.source(c)
	if err != nil {
		return err
	}
	rows, err := src.FetchRows(c.UserContext(), c.Params("id"), Page{Limit: limit, Offset: offset})
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []RowRecord{}
	}
	return c.JSON(rows)
}

func (s *Server) updateCell(c *fiber.Ctx) error {
	var update CellUpdate
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if update.Column == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "column is required")
	}
	if !update.Value.Valid() {
		return &DataIntegrityError{Column: update.Column, Reason: update.Value.problem, Err: ErrMalformedCell}
	}

	src, err := s.source(c)
	if err != nil {
		return err
	}
	key, err := src.UpdateCell(c.UserContext(), c.Params("id"), update)
	if err != nil {
		return err
	}
	return c.JSON(updateResult{Key: key})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	s.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"session", c.Get(headerSessionID),
		"request_id", c.GetRespHeader(headerRequestID),
	)
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	errCode := "INTERNAL"

	var fe *fiber.Error
	var integrity *DataIntegrityError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		errCode = "BAD_REQUEST"
		if code == fiber.StatusNotFound {
			errCode = "NOT_FOUND"
		} else if code == fiber.StatusUnprocessableEntity {
			errCode = "VALIDATION_FAILED"
		}
	case errors.Is(err, ErrTableNotFound), errors.Is(err, ErrRowNotFound):
		code = fiber.StatusNotFound
		errCode = "NOT_FOUND"
	case errors.As(err, &integrity):
		code = fiber.StatusUnprocessableEntity
		errCode = "VALIDATION_FAILED"
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": fiber.Map{"code": errCode, "message": err.Error()}})
}
