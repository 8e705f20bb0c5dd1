// Package api exposes the tuner over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
	"github.com/samcharles93/convtune/internal/tuner"
	"github.com/samcharles93/convtune/internal/version"
)

type Server struct {
	tuner *tuner.Tuner
	log   logger.Logger
}

func NewServer(t *tuner.Tuner, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{tuner: t, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/solvers", s.handleListSolvers)
	e.POST("/v1/find", s.handleFind)
	e.POST("/v1/tune", s.handleTune)
	e.GET("/v1/perfdb", s.handleListRecords)
	e.DELETE("/v1/perfdb/:key/:solver", s.handleDeleteRecord)
	e.GET("/v1/version", s.handleVersion)
}

func (s *Server) handleListSolvers(c *echo.Context) error {
	regs := s.tuner.Solvers()
	data := make([]SolverInfo, 0, len(regs))
	for _, r := range regs {
		_, searchable := r.Solver.(solver.Searchable)
		_, tunable := r.Solver.(solver.GenericSearchable)
		data = append(data, SolverInfo{ID: r.ID, Searchable: searchable, Tunable: tunable})
	}
	return c.JSON(http.StatusOK, ListResponse[SolverInfo]{Object: "list", Data: data})
}

func (s *Server) handleFind(c *echo.Context) error {
	req, err := decodeJSON[FindRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err)
	}
	if req.Request < 0 {
		return writeBadRequest(c, newInvalidRequest("request", "must not be negative"))
	}
	p, err := req.Problem.toProblem()
	if err != nil {
		return writeBadRequest(c, err)
	}

	id := newJobID("find")
	ctx := logger.WithContext(c.Request().Context(), s.log.With("job", id))
	results, err := s.tuner.Find(ctx, p, req.Request)
	if err != nil {
		return s.jobError(c, id, err)
	}
	return c.JSON(http.StatusOK, FindResponse{
		ID:      id,
		Object:  "find",
		Problem: p.Key(),
		Results: results,
	})
}

func (s *Server) handleTune(c *echo.Context) error {
	req, err := decodeJSON[TuneRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err)
	}
	p, err := req.Problem.toProblem()
	if err != nil {
		return writeBadRequest(c, err)
	}

	id := newJobID("tune")
	ctx := logger.WithContext(c.Request().Context(), s.log.With("job", id))
	results, err := s.tuner.Tune(ctx, p)
	if err != nil {
		return s.jobError(c, id, err)
	}
	return c.JSON(http.StatusOK, TuneResponse{
		ID:      id,
		Object:  "tune",
		Problem: p.Key(),
		Results: results,
	})
}

// jobError maps engine errors onto the error envelope.
func (s *Server) jobError(c *echo.Context, id string, err error) error {
	s.log.Error("job failed", "job", id, "error", err)
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, problem.ErrInvalidProblem):
		return writeBadRequest(c, err)
	case errors.Is(err, tuner.ErrPerfDbDisabled):
		return writePerfDbDisabled(c)
	case errors.Is(err, solver.ErrInternal):
		return writeError(c, http.StatusInternalServerError, "solver_error", err.Error(), "", "internal")
	default:
		return writeError(c, http.StatusUnprocessableEntity, "job_error", err.Error(), "", "")
	}
}

func (s *Server) handleListRecords(c *echo.Context) error {
	if s.tuner.PerfDb() == nil {
		return writePerfDbDisabled(c)
	}
	lister, ok := s.tuner.PerfDb().(perfdb.Lister)
	if !ok {
		return writeError(c, http.StatusNotImplemented, "server_error", "perf db cannot be listed", "", "")
	}
	records, err := lister.List()
	if err != nil {
		return writeServerError(c, err)
	}
	if records == nil {
		records = []perfdb.Record{}
	}
	return c.JSON(http.StatusOK, recordList{Object: "list", Data: records})
}

func (s *Server) handleDeleteRecord(c *echo.Context) error {
	if s.tuner.PerfDb() == nil {
		return writePerfDbDisabled(c)
	}
	key, id := c.Param("key"), c.Param("solver")
	if _, err := problem.ParseKey(key); err != nil {
		return writeBadRequest(c, newInvalidRequest("key", err.Error()))
	}
	removed, err := s.tuner.PerfDb().Remove(id, key)
	if err != nil {
		if errors.Is(err, perfdb.ErrReadOnly) {
			return writeError(c, http.StatusForbidden, "permission_error", err.Error(), "", "")
		}
		return writeServerError(c, err)
	}
	if !removed {
		return writeNotFound(c, "no record for "+id+" at "+key)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Key: key, Solver: id, Deleted: true})
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{
		Info:   version.Resolve(),
		Device: s.tuner.Device(),
	})
}
