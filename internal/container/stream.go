// ABOUTME: Splits Docker's multiplexed attach stream into stdout and stderr
// ABOUTME: Non-TTY containers prefix every frame with an 8-byte header

package container

import (
	"io"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/harper/rpcmux/internal/logger"
)

// demuxStreams returns one reader per stream. Both reach EOF when the
// multiplexed source does.
func demuxStreams(multiplexed io.Reader) (stdout, stderr io.ReadCloser) {
	stdoutPipe, stdoutWriter := io.Pipe()
	stderrPipe, stderrWriter := io.Pipe()

	go func() {
		_, err := stdcopy.StdCopy(stdoutWriter, stderrWriter, multiplexed)
		if err != nil && err != io.EOF {
			// The container may be going away; readers see the error.
			logger.Debug("stream demux error: %v", err)
			stdoutWriter.CloseWithError(err)
			stderrWriter.CloseWithError(err)
			return
		}
		stdoutWriter.Close()
		stderrWriter.Close()
	}()

	return stdoutPipe, stderrPipe
}
