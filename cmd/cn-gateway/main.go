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

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/simonlingoogle/go-simplelogger"

	"github.com/iot-lab/cn-node/cli"
	"github.com/iot-lab/cn-node/clock"
	"github.com/iot-lab/cn-node/gateway"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/node"
	"github.com/iot-lab/cn-node/pcap"
	"github.com/iot-lab/cn-node/progctx"
	"github.com/iot-lab/cn-node/transport"
)

type MainArgs struct {
	Device      string
	BaudRate    int
	Loopback    bool
	LogLevel    string
	LogDir      string
	ExportFile  string
	CaptureFile string
	HealthAddr  string
	SetTime     bool
}

var (
	args MainArgs
)

func parseArgs() {
	flag.StringVar(&args.Device, "device", node.DefaultDevice, "serial device linked to the control node")
	flag.IntVar(&args.BaudRate, "baud", transport.DefaultBaudRate, "serial baud rate")
	flag.BoolVar(&args.Loopback, "loopback", false, "run a control node in this process instead of opening the device")
	flag.StringVar(&args.LogLevel, "log", "warn", "set logging level: trace, debug, info, warn, error.")
	flag.StringVar(&args.LogDir, "log-dir", "", "directory receiving the control node log files")
	flag.StringVar(&args.ExportFile, "export", "", "append the measures to this file as CBOR")
	flag.StringVar(&args.CaptureFile, "capture", "", "record the serial frames in this PCAP file")
	flag.StringVar(&args.HealthAddr, "health", node.DefaultHealthAddr, "health address of the control node")
	flag.BoolVar(&args.SetTime, "settime", true, "set the control node time on start")

	flag.Parse()
}

func openLink(ctx *progctx.ProgCtx) (io.ReadWriter, error) {
	if !args.Loopback {
		return transport.OpenPort(args.Device, transport.PortOptions{BaudRate: args.BaudRate})
	}

	cfg := node.DefaultConfig()
	cfg.HealthAddr = args.HealthAddr
	stream, host := transport.Pipe()
	n := node.New(cfg, stream, clock.NewReal(), nil)
	if err := n.Start(ctx); err != nil {
		return nil, err
	}
	return host, nil
}

func openExport() (io.Writer, error) {
	if args.ExportFile == "" {
		return nil, nil
	}
	f, err := os.OpenFile(args.ExportFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open export file")
	}
	return f, nil
}

func main() {
	parseArgs()
	level, err := logger.ParseLevel(args.LogLevel)
	logger.FatalIfError(err)
	logger.SetLevel(level)
	simplelogger.SetLevel(simplelogger.ParseLevel(args.LogLevel))

	ctx := progctx.New(context.Background())
	handleSignals(ctx)

	link, err := openLink(ctx)
	logger.FatalIfError(err)
	export, err := openExport()
	logger.FatalIfError(err)
	if f, ok := export.(io.Closer); ok {
		ctx.Defer(func() {
			_ = f.Close()
		})
	}

	opts := &gateway.Options{LogDir: args.LogDir, Export: export}
	if args.CaptureFile != "" {
		opts.Capture, err = pcap.NewFile(args.CaptureFile)
		logger.FatalIfError(err)
		ctx.Defer(func() {
			_ = opts.Capture.Close()
		})
	}

	client := gateway.NewClient(link, opts)
	ctx.Go("gateway", client.Run)

	if args.SetTime {
		setCtx, cancel := context.WithTimeout(ctx, cli.CommandTimeout)
		if err := client.SetTime(setCtx, time.Now()); err != nil {
			logger.Warnf("initial set_time: %v", err)
		}
		cancel()
	}

	con := cli.NewConsole(nil)
	logger.SetStdoutCallback(con)
	ctx.Defer(func() {
		_ = os.Stdin.Close()
	})
	rt := cli.NewCmdRunner(ctx, client, args.HealthAddr)
	ctx.WaitAdd("console", 1)
	go func() {
		defer ctx.WaitDone("console")
		err := con.Run(rt)
		ctx.Cancel(errors.Wrapf(err, "console exit"))
	}()

	ctx.Wait()
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	ctx.WaitAdd("handleSignals", 1)
	go func() {
		defer simplelogger.Debugf("handleSignals exit.")
		defer ctx.WaitDone("handleSignals")

		for {
			select {
			case sig := <-c:
				simplelogger.Infof("signal received: %v", sig)
				ctx.Cancel(nil)
			case <-ctx.Done():
				return
			}
		}
	}()
}
