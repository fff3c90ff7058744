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

package pcap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pcapFileHeaderSize  = 24
	pcapFrameHeaderSize = 16
)

func TestCaptureFile(t *testing.T) {
	pcapFilename := filepath.Join(t.TempDir(), "test.pcap")
	pcap, err := NewFile(pcapFilename)
	require.NoError(t, err)
	defer func() {
		_ = pcap.Close()
	}()

	assert.Equal(t, pcapFileHeaderSize, getFileSize(t, pcapFilename))

	for i := 0; i < 10; i++ {
		err = pcap.AppendFrame(Frame{
			Timestamp: time.Unix(1700000000, int64(i)*1000),
			Direction: FromNode,
			Data:      []byte{0x80, 0x02, 0x53, 0x0a},
		})
		require.NoError(t, err)
		assert.Equal(t, pcapFileHeaderSize+(pcapFrameHeaderSize+5)*(i+1), getFileSize(t, pcapFilename))
	}
	assert.Equal(t, uint64(10), pcap.Frames())
}

func TestCaptureReadBack(t *testing.T) {
	var buf bytes.Buffer
	pcap, err := NewWriter(&buf)
	require.NoError(t, err)

	in := []Frame{
		{Timestamp: time.Unix(1700000000, 1000), Direction: ToNode, Data: []byte{0x80, 0x01, 0x54}},
		{Timestamp: time.Unix(1700000001, 2000), Direction: FromNode, Data: []byte{0x80, 0x02, 0x54, 0x0a}},
	}
	for _, f := range in {
		require.NoError(t, pcap.AppendFrame(f))
	}
	require.NoError(t, pcap.Close())

	out, err := ReadFrames(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.True(t, in[i].Timestamp.Equal(out[i].Timestamp))
		assert.Equal(t, in[i].Direction, out[i].Direction)
		assert.Equal(t, in[i].Data, out[i].Data)
	}
	assert.Equal(t, "from_node", out[1].Direction.String())
}

func TestReadFramesRejectsGarbage(t *testing.T) {
	_, err := ReadFrames(bytes.NewReader([]byte("not a capture file at all")))
	assert.Error(t, err)
}

func getFileSize(t *testing.T, fp string) int {
	info, err := os.Stat(fp)
	if err != nil {
		t.Fatal(err)
	}

	return int(info.Size())
}
