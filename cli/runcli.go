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

package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/iot-lab/cn-node/logger"
)

type CliHandler interface {
	HandleCommand(cmd string, output io.Writer) error
	GetPrompt() string
}

type CliOptions struct {
	EchoInput   bool
	HistoryFile string
	Stdin       *os.File
	Stdout      *os.File
}

func DefaultCliOptions() *CliOptions {
	return &CliOptions{}
}

// Console reads command lines and hands them to a CliHandler.
type Console struct {
	Started chan struct{}
	options *CliOptions
	rl      *readline.Instance
	closed  chan struct{}
}

func NewConsole(options *CliOptions) *Console {
	if options == nil {
		options = DefaultCliOptions()
	}
	if options.Stdin == nil {
		options.Stdin = os.Stdin
	}
	if options.Stdout == nil {
		options.Stdout = os.Stdout
	}
	return &Console{
		Started: make(chan struct{}),
		options: options,
		closed:  make(chan struct{}),
	}
}

// RestorePrompt redraws the prompt after asynchronous output.
func (con *Console) RestorePrompt() {
	select {
	case <-con.Started:
		if con.rl != nil {
			con.rl.Refresh()
		}
	default:
	}
}

// OnStdout is called by the logger after it wrote to the terminal.
func (con *Console) OnStdout() {
	con.RestorePrompt()
}

// Stop ends a running console and waits for Run to return.
func (con *Console) Stop() {
	<-con.Started
	// readline blocks in Close while a read is pending: interrupt the read and
	// close the input instead, Run closes the instance.
	_, _ = con.options.Stdin.WriteString("\003\n")
	_ = con.options.Stdin.Close()
	<-con.closed
}

func saveTermState(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())
	if !readline.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := readline.GetState(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = readline.Restore(fd, state) }, nil
}

// Run reads commands until the input ends, Ctrl-C is typed on an empty line or
// the handler returns an error.
func (con *Console) Run(handler CliHandler) error {
	defer logger.Debugf("console exit.")
	defer close(con.closed)

	rl, err := con.open(handler)
	if err != nil {
		close(con.Started)
		return err
	}
	defer func() {
		_ = rl.Close()
	}()
	con.rl = rl
	close(con.Started)

	stdout := con.options.Stdout
	for {
		rl.SetPrompt(handler.GetPrompt())
		line, err := rl.Readline()

		if len(line) > 0 && line[0] == readline.CharInterrupt {
			return nil
		} else if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if con.options.EchoInput {
			if _, err := stdout.WriteString(line + "\n"); err != nil {
				return err
			}
		}

		cmd := strings.TrimSpace(line)
		if len(cmd) == 0 {
			continue
		}
		err = handler.HandleCommand(cmd, rl.Stdout())
		_ = stdout.Sync()
		if err != nil {
			return err
		}
	}
}

func (con *Console) open(handler CliHandler) (*readline.Instance, error) {
	restoreIn, err := saveTermState(con.options.Stdin)
	if err != nil {
		return nil, err
	}
	restoreOut, err := saveTermState(con.options.Stdout)
	if err != nil {
		restoreIn()
		return nil, err
	}
	go func() {
		<-con.closed
		restoreOut()
		restoreIn()
	}()

	return readline.NewEx(&readline.Config{
		Prompt:          handler.GetPrompt(),
		HistoryFile:     con.options.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           con.options.Stdin,
		Stdout:          con.options.Stdout,

		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			// block CtrlZ feature
			if r == readline.CharCtrlZ {
				return r, false
			}
			return r, true
		},
	})
}
