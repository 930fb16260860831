// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status serves live bridge statistics over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/gin-gonic/gin"
)

// StatsProvider returns a statistics snapshot. bridge.Bridge implements it.
type StatsProvider interface {
	Stats() blemidi.Statistics
}

// Info describes how the bridge was started.
type Info struct {
	Device        string `json:"device"`
	Source        string `json:"source"`
	Sink          string `json:"sink"`
	MTU           int    `json:"mtu"`
	IntervalMin   uint16 `json:"interval_min"`
	IntervalMax   uint16 `json:"interval_max"`
	RunningStatus bool   `json:"running_status"`
	Capture       string `json:"capture,omitempty"`
}

// Server is the status HTTP server
type Server struct {
	router *gin.Engine
	stats  StatsProvider
	info   Info
}

// NewServer builds the router
func NewServer(stats StatsProvider, info Info) *Server {
	s := &Server{
		router: gin.New(),
		stats:  stats,
		info:   info,
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.healthCheck)
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/stats", s.getStats)
		v1.GET("/config", s.getConfig)
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	stats := s.stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "blemidi",
		"connected": stats.Connected,
		"uptime_s":  time.Since(stats.StartTime).Seconds(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats := s.stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"stats":           stats,
		"avg_packet_size": stats.AveragePacketSize(),
	})
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.info)
}
