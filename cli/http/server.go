// Copyright 2025 seclens <opensource@seclens.io>. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http serves the read-only status API of a pipeline run:
// liveness, the current run activity, and the last finished report. The
// pipeline never depends on it.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/output/writers"
	"github.com/seclens/capscrub/internal/pipeline"
)

type HttpServer struct {
	tracker *Tracker
	version string
	ge      *gin.Engine
	addr    string
}

// NewServer creates the status server. Register its Tracker with the
// run's event dispatcher to feed it.
func NewServer(addr, version string, log *logger.Logger) *HttpServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithWriter(writers.NewLoggerWriter(log.WithComponent("http"))), gin.Recovery())
	hs := &HttpServer{
		tracker: NewTracker(),
		version: version,
		ge:      r,
		addr:    addr,
	}
	hs.attach()
	return hs
}

func (hs *HttpServer) attach() {
	hs.ge.GET("/healthz", hs.Healthz)
	hs.ge.GET("/status", hs.Status)
	hs.ge.GET("/report", hs.Report)
}

func (hs *HttpServer) Run() error {
	return hs.ge.Run(hs.addr)
}

// Tracker returns the event handler feeding this server.
func (hs *HttpServer) Tracker() domain.EventHandler {
	return hs.tracker
}

// SetReport publishes a finished run's report.
func (hs *HttpServer) SetReport(rep *pipeline.Report) {
	hs.tracker.SetReport(rep)
}

func (hs *HttpServer) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, Resp{
		Code: RespOK,
		Msg:  RespOK.String(),
		Data: gin.H{"version": hs.version},
	})
}

func (hs *HttpServer) Status(c *gin.Context) {
	c.JSON(http.StatusOK, Resp{
		Code: RespOK,
		Msg:  RespOK.String(),
		Data: hs.tracker.Snapshot(),
	})
}

func (hs *HttpServer) Report(c *gin.Context) {
	rep := hs.tracker.LastReport()
	if rep == nil {
		c.JSON(http.StatusNotFound, Resp{
			Code: RespErrorNotFound,
			Msg:  "no finished run",
			Data: nil,
		})
		return
	}
	c.JSON(http.StatusOK, Resp{
		Code: RespOK,
		Msg:  RespOK.String(),
		Data: rep,
	})
}
