// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package admin

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

// Server serves the admin routes and the grpc health service on one port.
type Server struct {
	admin *Admin
	addr  string

	mu              sync.Mutex
	lis, glis, hlis net.Listener
	hsrv            *http.Server
	gsrv            *grpc.Server
	hs              *health.Server
	closed          bool
}

func NewServer(a *Admin, addr string) *Server {
	return &Server{admin: a, addr: addr, hs: health.NewServer()}
}

// Listen binds the port. Separate from Serve so that a busy port is
// reported before the control loop starts.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// SetServing sets the status reported by grpc health checks. Normal mode
// serves, config mode does not.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus("", st)
}

// Serve blocks until Close. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	m := cmux.New(s.lis)
	// grpc clients wait for the SETTINGS frame before sending headers; see
	// https://github.com/soheilhy/cmux#limitations
	s.glis = m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	s.hlis = m.Match(cmux.HTTP1Fast())
	s.gsrv = grpc.NewServer()
	healthpb.RegisterHealthServer(s.gsrv, s.hs)
	s.hsrv = &http.Server{
		Handler:           s.admin.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.StdLogger("http: ", 0),
	}
	glis, hlis := s.glis, s.hlis
	s.mu.Unlock()

	g := new(errgroup.Group)
	g.Go(func() error { return s.gsrv.Serve(glis) })
	g.Go(func() error { return s.hsrv.Serve(hlis) })
	g.Go(func() error { return m.Serve() })
	log.Logf("admin server listening on %s", s.lis.Addr())

	err := g.Wait()
	// see ErrNetClosing in $GOROOT/src/internal/poll/fd.go; this string
	// will not change
	if err != nil && (strings.Contains(err.Error(), "use of closed network connection") ||
		err == http.ErrServerClosed || err == cmux.ErrListenerClosed || err == grpc.ErrServerStopped) {
		err = nil
	}
	return err
}

func (s *Server) Close() {
	log.Log("shutting down admin server...")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.gsrv != nil {
		s.gsrv.Stop()
	}
	if s.hsrv != nil {
		s.hsrv.Close()
	}
	if s.glis != nil {
		s.glis.Close()
	}
	if s.hlis != nil {
		s.hlis.Close()
	}
	if s.lis != nil {
		s.lis.Close()
	}
}
