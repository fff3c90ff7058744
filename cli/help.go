// Copyright (c) 2023, The OTNS Authors.
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
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/term"

	"github.com/iot-lab/cn-node/logger"
)

const (
	defaultTermWidth = 80
	helpIndent       = "  "
)

var (
	cmdHeaderPattern  = regexp.MustCompile(`^###\s+(\S+)`)
	linkTargetPattern = regexp.MustCompile(`\(#[a-z]+\)`)
	fenceLabels       = map[string]string{"```shell": "Usage:", "```console": "Example:"}
)

//go:embed README.md
var cliHelpFile string

// helpTopic is the section of one command in the help file.
type helpTopic struct {
	name  string
	short string
	lines []string // body, code blocks already indented
}

// Help renders the console help, wrapped to the terminal width.
type Help struct {
	termWidth uint
	nameWidth uint
	topics    []helpTopic
	byName    map[string]int
}

func newHelp() Help {
	h := Help{
		termWidth: defaultTermWidth,
		byName:    make(map[string]int),
	}
	h.parse(cliHelpFile)
	h.update()
	return h
}

// update reads the terminal width of stdout. The previous width is kept when stdout is not a terminal.
func (help *Help) update() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= int(help.nameWidth)+1 {
		logger.Debugf("terminal size unavailable: %v", err)
		return
	}
	help.termWidth = uint(width)
}

func (help *Help) bodyWidth() uint {
	return help.termWidth - help.nameWidth - 1
}

// parse splits the markdown help file into topics, one per "### name" header.
// Text before the first header is ignored.
func (help *Help) parse(md string) {
	var cur *helpTopic
	inCode := false
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if m := cmdHeaderPattern.FindStringSubmatch(line); m != nil {
			help.topics = append(help.topics, helpTopic{name: m[1]})
			cur = &help.topics[len(help.topics)-1]
			inCode = false
			continue
		}
		if cur == nil || line == "" {
			continue
		}

		if label, ok := fenceLabels[line]; ok {
			cur.lines = append(cur.lines, "", label)
			inCode = true
			continue
		}
		if line == "```" {
			inCode = false
			continue
		}

		text := unquoteMarkdown(line)
		if inCode {
			cur.lines = append(cur.lines, helpIndent+text)
			continue
		}
		cur.lines = append(cur.lines, text)
		if cur.short == "" {
			cur.short = firstSentence(text)
		}
	}

	sort.Slice(help.topics, func(i, j int) bool { return help.topics[i].name < help.topics[j].name })
	help.nameWidth = 0
	for i, t := range help.topics {
		help.byName[t.name] = i
		if n := uint(len(t.name)); n > help.nameWidth {
			help.nameWidth = n
		}
	}
}

func firstSentence(s string) string {
	if idx := strings.Index(s, "."); idx > 0 {
		return s[:idx+1]
	}
	return s
}

func unquoteMarkdown(md string) string {
	md = strings.ReplaceAll(md, "\\", "")
	return linkTargetPattern.ReplaceAllString(md, "")
}

// outputGeneralHelp lists every command with its first sentence.
func (help *Help) outputGeneralHelp() string {
	help.update()
	pad := "\n" + strings.Repeat(" ", int(help.nameWidth)+1)

	var sb strings.Builder
	for _, t := range help.topics {
		short := wordwrap.WrapString(t.short, help.bodyWidth())
		fmt.Fprintf(&sb, "%-*s %s\n", help.nameWidth, t.name, strings.ReplaceAll(short, "\n", pad))
	}
	sb.WriteString(wordwrap.WrapString("\nFor detailed help per command, use: 'help <command>'\n", help.termWidth))
	return sb.String()
}

// outputCommandHelp returns the full help of one command.
func (help *Help) outputCommandHelp(command string) string {
	help.update()
	i, ok := help.byName[command]
	if !ok {
		return command + "\n" + helpIndent + "(Non-existent command.)\n"
	}

	var sb strings.Builder
	sb.WriteString(command + "\n")
	for _, line := range help.topics[i].lines {
		for _, wrapped := range strings.Split(wordwrap.WrapString(line, help.bodyWidth()), "\n") {
			if wrapped == "" {
				sb.WriteString("\n")
				continue
			}
			sb.WriteString(helpIndent + wrapped + "\n")
		}
	}
	return sb.String()
}
