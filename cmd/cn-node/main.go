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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/simonlingoogle/go-simplelogger"

	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/node"
	"github.com/iot-lab/cn-node/progctx"
	"github.com/iot-lab/cn-node/transport"
)

type MainArgs struct {
	ConfigFile string
	Device     string
	BaudRate   int
	LogLevel   string
	LogFile    string
	HealthAddr string
	EmulatePPS bool
	ListPorts  bool
}

var (
	args MainArgs
)

func parseArgs() {
	flag.StringVar(&args.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&args.Device, "device", "", "serial device linked to the gateway (overrides the configuration)")
	flag.IntVar(&args.BaudRate, "baud", 0, "serial baud rate (overrides the configuration)")
	flag.StringVar(&args.LogLevel, "log", "", "set logging level: trace, debug, info, warn, error.")
	flag.StringVar(&args.LogFile, "logfile", "", "also write the log to this file")
	flag.StringVar(&args.HealthAddr, "health", "", "serve gRPC health checks on this address")
	flag.BoolVar(&args.EmulatePPS, "pps", false, "emulate the PPS input from the host clock")
	flag.BoolVar(&args.ListPorts, "list-ports", false, "list the serial ports and exit")

	flag.Parse()
}

func loadConfig() *node.Config {
	cfg := node.DefaultConfig()
	if args.ConfigFile != "" {
		var err error
		cfg, err = node.LoadConfig(args.ConfigFile)
		logger.FatalIfError(err)
	}

	if args.Device != "" {
		cfg.Serial.Device = args.Device
	}
	if args.BaudRate != 0 {
		cfg.Serial.Port.BaudRate = args.BaudRate
	}
	if args.LogLevel != "" {
		level, err := logger.ParseLevel(args.LogLevel)
		logger.FatalIfError(err)
		cfg.LogLevel = level
	}
	if args.LogFile != "" {
		cfg.LogFile = args.LogFile
	}
	if args.HealthAddr != "" {
		cfg.HealthAddr = args.HealthAddr
	}
	if args.EmulatePPS {
		cfg.PPS.Emulate = true
	}
	logger.FatalIfError(cfg.Validate())
	return cfg
}

func main() {
	parseArgs()

	if args.ListPorts {
		ports, err := transport.ListPorts()
		logger.FatalIfError(err)
		for _, port := range ports {
			fmt.Println(port)
		}
		return
	}

	cfg := loadConfig()
	logger.SetLevel(cfg.LogLevel)
	simplelogger.SetLevel(simplelogger.ParseLevel(logger.ToFrameLevel(cfg.LogLevel).String()))
	if cfg.LogFile != "" {
		logger.FatalIfError(logger.SetOutput([]string{"stderr", cfg.LogFile}))
	}
	defer logger.Sync()

	ctx := progctx.New(context.Background())
	handleSignals(ctx)

	n, err := node.Open(cfg)
	logger.FatalIfError(err)
	if err = n.Start(ctx); err != nil {
		ctx.Cancel(err)
	}

	ctx.Wait()
	logger.Infof("control node stopped: %+v", n.Status())
	if ctx.Cause() != nil {
		logger.Sync()
		os.Exit(1)
	}
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)

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
