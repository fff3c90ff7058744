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

// Package cli implements the gateway console. It parses and executes console commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/prototext"

	"github.com/iot-lab/cn-node/gateway"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/progctx"
	. "github.com/iot-lab/cn-node/types"
)

const (
	Prompt = "> "

	// CommandTimeout bounds the wait for the answer of the control node.
	CommandTimeout = 3 * time.Second
)

// Gateway is the part of gateway.Client used by the console.
type Gateway interface {
	SetTime(ctx context.Context, now time.Time) error
	SetNodeId(ctx context.Context, id uint16) error
	NodeId() uint16
	GreenLedOn(ctx context.Context) error
	GreenLedBlink(ctx context.Context) error
	ConfigGpio(ctx context.Context, start bool, gpios uint8) error
	Stats() gateway.Stats
}

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

type CmdRunner struct {
	ctx        *progctx.ProgCtx
	gw         Gateway
	healthAddr string
	now        func() time.Time
	help       Help
}

// NewCmdRunner creates the console command runner. healthAddr is the default
// address queried by the health command.
func NewCmdRunner(ctx *progctx.ProgCtx, gw Gateway, healthAddr string) *CmdRunner {
	return &CmdRunner{
		ctx:        ctx,
		gw:         gw,
		healthAddr: healthAddr,
		now:        time.Now,
		help:       newHelp(),
	}
}

func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	if rt.ctx.Err() == nil {
		cmd := Command{}
		if err := parseBytes([]byte(cmdline), &cmd); err != nil {
			if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
				return err
			}
		} else {
			rt.execute(&cmd, output)
		}
	}
	return rt.ctx.Err()
}

func (rt *CmdRunner) GetPrompt() string {
	if id := rt.gw.NodeId(); id != 0 {
		return fmt.Sprintf("cn %04x%s", id, Prompt)
	}
	return Prompt
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	ctx, cancel := context.WithTimeout(rt.ctx, CommandTimeout)
	defer cancel()

	cc := &CommandContext{
		Context: ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	if cmd.SetTime != nil {
		rt.executeSetTime(cc)
	} else if cmd.NodeId != nil {
		rt.executeNodeId(cc, cmd.NodeId)
	} else if cmd.Led != nil {
		rt.executeLed(cc, cmd.Led)
	} else if cmd.Gpio != nil {
		rt.executeGpio(cc, cmd.Gpio)
	} else if cmd.Stats != nil {
		rt.executeStats(cc)
	} else if cmd.Health != nil {
		rt.executeHealth(cc, cmd.Health)
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Exit != nil {
		rt.executeExit(cc)
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

func (rt *CmdRunner) executeSetTime(cc *CommandContext) {
	now := rt.now()
	if err := rt.gw.SetTime(cc.Context, now); err != nil {
		cc.error(err)
		return
	}
	cc.outputf("%s\n", TimevalFromTime(now))
}

func (rt *CmdRunner) executeNodeId(cc *CommandContext, cmd *NodeIdCmd) {
	if cmd.Id == nil {
		cc.outputf("%04x\n", rt.gw.NodeId())
		return
	}
	if *cmd.Id <= 0 || *cmd.Id > 0xffff {
		cc.errorf("invalid node id %d", *cmd.Id)
		return
	}
	cc.error(rt.gw.SetNodeId(cc.Context, uint16(*cmd.Id)))
}

func (rt *CmdRunner) executeLed(cc *CommandContext, cmd *LedCmd) {
	if cmd.Mode == "on" {
		cc.error(rt.gw.GreenLedOn(cc.Context))
	} else {
		cc.error(rt.gw.GreenLedBlink(cc.Context))
	}
}

func (rt *CmdRunner) executeGpio(cc *CommandContext, cmd *GpioCmd) {
	inputs := 0xff
	if cmd.Inputs != nil {
		inputs = *cmd.Inputs
	}
	if inputs < 0 || inputs > 0xff {
		cc.errorf("invalid input mask %d", inputs)
		return
	}
	cc.error(rt.gw.ConfigGpio(cc.Context, cmd.Action == "start", uint8(inputs)))
}

func (rt *CmdRunner) executeStats(cc *CommandContext) {
	stats := rt.gw.Stats()
	statsVal := reflect.ValueOf(stats)
	statsTyp := reflect.TypeOf(stats)
	for i := 0; i < statsVal.NumField(); i++ {
		cc.outputf("%-20s %v\n", statsTyp.Field(i).Name, statsVal.Field(i).Uint())
	}
}

func (rt *CmdRunner) executeHealth(cc *CommandContext, cmd *HealthCmd) {
	addr := strings.Trim(cmd.Addr, `"`)
	if addr == "" {
		addr = rt.healthAddr
	}
	if addr == "" {
		cc.errorf("no health address")
		return
	}
	req := &healthpb.HealthCheckRequest{}
	if cmd.Service != nil {
		req.Service = strings.Trim(*cmd.Service, `"`)
	}

	conn, err := grpc.DialContext(cc.Context, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cc.error(errors.Wrapf(err, "dial %s", addr))
		return
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(cc.Context, req)
	if err != nil {
		cc.error(errors.Wrapf(err, "health %s", addr))
		return
	}
	cc.outputf("%s\n", prototext.Format(resp))
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevel())
		return
	}
	level, err := logger.ParseLevel(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(level)
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) > 0 {
		cc.outputStr(rt.help.outputCommandHelp(cmd.HelpTopic))
	} else {
		cc.outputStr(rt.help.outputGeneralHelp())
	}
}

func (rt *CmdRunner) executeExit(cc *CommandContext) {
	rt.ctx.Cancel("console exit")
}
