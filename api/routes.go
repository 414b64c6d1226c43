package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pvsim104/plant"
)

type PointDTO struct {
	Address    int        `json:"address"`
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Group      string     `json:"group"`
	Unit       string     `json:"unit,omitempty"`
	Value      *float64   `json:"value,omitempty"`
	State      *bool      `json:"state,omitempty"`
	LastReport *time.Time `json:"last_report,omitempty"`
}

type HealthDTO struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

type CommandRequest struct {
	Running bool `json:"running"`
}

type CommandDTO struct {
	Inverter int    `json:"inverter"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthz", s.HealthHandler)
	e.GET("/api/points", s.PointsHandler)
	e.GET("/api/points/:address", s.PointHandler)
	e.POST("/api/inverters/:inverter/state", s.CommandHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthHandler(c echo.Context) error {
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Sessions()
	}
	return c.JSON(http.StatusOK, HealthDTO{
		Status:   "ok",
		Version:  versioninfo.Short(),
		Sessions: sessions,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
}

// PointsHandler lists every reportable point, optionally filtered by ?group=.
func (s *Server) PointsHandler(c echo.Context) error {
	group := strings.ToLower(c.QueryParam("group"))
	out := make([]PointDTO, 0)
	for _, p := range s.station.Snapshot() {
		if group != "" && strings.ToLower(p.Group.String()) != group {
			continue
		}
		out = append(out, toDTO(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) PointHandler(c echo.Context) error {
	addr, err := strconv.Atoi(c.Param("address"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "address must be an integer")
	}
	for _, p := range s.station.Snapshot() {
		if p.Address == addr {
			return c.JSON(http.StatusOK, toDTO(p))
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown address")
}

// CommandHandler switches an inverter (1 based) the same way a C_SC_NA_1 would.
func (s *Server) CommandHandler(c echo.Context) error {
	inv, err := strconv.Atoi(c.Param("inverter"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "inverter must be an integer")
	}
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res := s.station.Command(plant.CommandAddress(inv-1), req.Running)
	if !res.Accepted {
		return echo.NewHTTPError(http.StatusNotFound, "unknown inverter")
	}
	s.log.WithField("inverter", inv).Info("inverter switched over HTTP")
	return c.JSON(http.StatusOK, CommandDTO{Inverter: res.Inverter + 1, From: res.From.String(), To: res.To.String()})
}

func toDTO(p plant.Point) PointDTO {
	dto := PointDTO{
		Address: p.Address,
		Name:    p.Name,
		Kind:    p.Kind.String(),
		Group:   p.Group.String(),
		Unit:    p.Unit,
	}
	if p.Kind == plant.Analog {
		v := p.Value
		dto.Value = &v
	} else {
		st := p.State
		dto.State = &st
	}
	if !p.LastReportTime.IsZero() {
		t := p.LastReportTime
		dto.LastReport = &t
	}
	return dto
}
