// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package node

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/progctx"
)

// SerialService is the health service name reporting the gateway link.
const SerialService = "cn.serial"

// Health serves the gRPC health protocol for the node.
type Health struct {
	server *grpc.Server
	status *health.Server
	addr   net.Addr
}

// ServeHealth listens on addr and serves until ctx is done.
func ServeHealth(ctx *progctx.ProgCtx, addr string) (*Health, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "health listen")
	}

	h := &Health{
		server: grpc.NewServer(),
		status: health.NewServer(),
		addr:   lis.Addr(),
	}
	healthpb.RegisterHealthServer(h.server, h.status)
	h.status.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.status.SetServingStatus(SerialService, healthpb.HealthCheckResponse_NOT_SERVING)

	ctx.Go("health", func(c context.Context) error {
		go func() {
			<-c.Done()
			h.status.Shutdown()
			h.server.GracefulStop()
		}()
		return h.server.Serve(lis)
	})
	logger.Infof("health server listening on %s", h.addr)
	return h, nil
}

func (h *Health) Addr() net.Addr {
	return h.addr
}

// SetServing reports the state of the serial link.
func (h *Health) SetServing(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus(SerialService, status)
}
