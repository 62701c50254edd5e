package utils

import "io"

type flusher interface {
	Flush() error
}

type flushingWriter struct {
	destination io.Writer
}

// NewFlushingWriter wraps destination so every write is followed by Flush when the destination supports it.
func NewFlushingWriter(destination io.Writer) io.Writer {
	if destination == nil {
		return io.Discard
	}
	return flushingWriter{destination: destination}
}

func (writer flushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.destination.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flushable, ok := writer.destination.(flusher); ok {
		if flushError := flushable.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}
	return bytesWritten, nil
}
