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

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NodeLogger records the logger frames of one control node. Levels and output file can be set per node.
type NodeLogger struct {
	Id           uint16
	fileLevel    Level
	displayLevel Level

	mu            sync.Mutex
	logFile       *os.File
	logFileName   string
	isFileEnabled bool
}

var (
	nodeLogs = make(map[uint16]*NodeLogger, 4)
	mutex    = sync.Mutex{}
)

// GetNodeLogger gets the NodeLogger instance for the given node id, creating it on first use.
// An empty outputDir disables the log file.
func GetNodeLogger(outputDir string, nodeId uint16) *NodeLogger {
	mutex.Lock()
	defer mutex.Unlock()

	nl, ok := nodeLogs[nodeId]
	if !ok {
		nl = &NodeLogger{
			Id:            nodeId,
			fileLevel:     DebugLevel,
			displayLevel:  InfoLevel,
			isFileEnabled: outputDir != "",
		}
		if nl.isFileEnabled {
			nl.logFileName = getLogFileName(outputDir, nodeId)
			nl.createLogFile()
		}
		nodeLogs[nodeId] = nl
	}
	return nl
}

func getLogFileName(outputDir string, nodeId uint16) string {
	return filepath.Join(outputDir, fmt.Sprintf("cn_%04x.log", nodeId))
}

func (nl *NodeLogger) createLogFile() {
	var err error
	nl.logFile, err = os.OpenFile(nl.logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0664)
	if err != nil {
		Errorf("creating node log file %s failed: %+v", nl.logFileName, err)
		nl.isFileEnabled = false
		return
	}

	header := fmt.Sprintf("#\n# control node %04x log, opened %s\n# HostTime                 Lev Message",
		nl.Id, time.Now().Format(time.RFC3339))
	_ = nl.writeToLogFile(header)
	Debugf("Node log file '%s' created.", nl.logFileName)
}

func (nl *NodeLogger) SetFileLevel(level Level) {
	nl.mu.Lock()
	nl.fileLevel = level
	nl.mu.Unlock()
}

func (nl *NodeLogger) SetDisplayLevel(level Level) {
	nl.mu.Lock()
	nl.displayLevel = level
	nl.mu.Unlock()
}

// Log records one message received from the node.
func (nl *NodeLogger) Log(level Level, msg string) {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	if nl.isFileEnabled && level <= nl.fileLevel {
		line := fmt.Sprintf("%s %-4s %s", time.Now().Format("2006-01-02T15:04:05.000000"),
			level, msg)
		_ = nl.writeToLogFile(line)
	}
	if level <= nl.displayLevel {
		logAlways(level, fmt.Sprintf("cn_%04x: %s", nl.Id, msg))
	}
}

func (nl *NodeLogger) writeToLogFile(line string) error {
	_, err := nl.logFile.WriteString(line + "\n")
	if err != nil {
		_ = nl.logFile.Close()
		nl.logFile = nil
		nl.isFileEnabled = false
		Errorf("couldn't write to node log file (%s), closing it", nl.logFileName)
	}
	return err
}

// IsFileEnabled returns true if logging to file is currently enabled, false if not.
func (nl *NodeLogger) IsFileEnabled() bool {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	return nl.isFileEnabled
}

// FileName returns the log file path, or "" when no file is used.
func (nl *NodeLogger) FileName() string {
	return nl.logFileName
}

// Close closes the node log file and forgets the logger.
func (nl *NodeLogger) Close() {
	nl.mu.Lock()
	if nl.logFile != nil {
		_ = nl.logFile.Close()
		nl.logFile = nil
	}
	nl.isFileEnabled = false
	nl.mu.Unlock()

	mutex.Lock()
	delete(nodeLogs, nl.Id)
	mutex.Unlock()
}
