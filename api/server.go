package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"pvsim104/plant"
)

// Station is the part of plant.Station the diagnostics surface uses.
type Station interface {
	Snapshot() []plant.Point
	Command(addr int, on bool) plant.CommandResult
}

// SessionCounter reports connected IEC 104 masters.
type SessionCounter interface {
	Sessions() int
}

type Server struct {
	station  Station
	sessions SessionCounter
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	started  time.Time
	httpLog  bool
}

func NewServer(listen string, station Station, sessions SessionCounter, gatherer prometheus.Gatherer, logger logrus.FieldLogger, httpLog bool) *http.Server {
	s := &Server{
		station:  station,
		sessions: sessions,
		gatherer: gatherer,
		log:      logger.WithField("component", "http"),
		started:  time.Now(),
		httpLog:  httpLog,
	}

	return &http.Server{
		Addr:         listen,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
