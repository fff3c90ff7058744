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
	"github.com/alecthomas/participle"
)

// noinspection GoStructTag
type Command struct {
	Exit     *ExitCmd     `  @@` //nolint
	Gpio     *GpioCmd     `| @@` //nolint
	Health   *HealthCmd   `| @@` //nolint
	Help     *HelpCmd     `| @@` //nolint
	Led      *LedCmd      `| @@` //nolint
	LogLevel *LogLevelCmd `| @@` //nolint
	NodeId   *NodeIdCmd   `| @@` //nolint
	SetTime  *SetTimeCmd  `| @@` //nolint
	Stats    *StatsCmd    `| @@` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

// noinspection GoStructTag
type GpioCmd struct {
	Cmd    struct{} `"gpio"`                 //nolint
	Action string   `@( "start" | "stop" )` //nolint
	Inputs *int     `[ @Int ]`              //nolint
}

// noinspection GoStructTag
type HealthCmd struct {
	Cmd     struct{} `"health"`      //nolint
	Addr    string   `[ @String ]`   //nolint
	Service *string  `[ "service" @String ]` //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

// noinspection GoStructTag
type LedCmd struct {
	Cmd  struct{} `"led"`                //nolint
	Mode string   `@( "on" | "blink" )` //nolint
}

type LogLevelCmd struct {
	Cmd   struct{} `"log"`                                                         //nolint
	Level string   `[@( "micro"|"trace"|"debug"|"info"|"note"|"warn"|"error" )]` //nolint
}

// noinspection GoStructTag
type NodeIdCmd struct {
	Cmd struct{} `"nodeid"` //nolint
	Id  *int     `[ @Int ]` //nolint
}

// noinspection GoStructTag
type SetTimeCmd struct {
	Cmd struct{} `"settime"` //nolint
}

// noinspection GoStructTag
type StatsCmd struct {
	Cmd struct{} `"stats"` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func parseBytes(b []byte, cmd *Command) error {
	return commandParser.ParseBytes(b, cmd)
}
