package ai

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// errStopStream lets an event callback end reading without an error.
var errStopStream = errors.New("stop stream")

// readSSE reads server-sent events from r and calls onEvent with the joined
// data lines of each event. Comments and other fields are ignored.
func readSSE(r io.Reader, onEvent func(data string) error) error {
	br := bufio.NewReader(r)
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		return onEvent(data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ferr := flush(); ferr != nil {
				return stopOrErr(ferr)
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return stopOrErr(flush())
		}
	}
}

func stopOrErr(err error) error {
	if errors.Is(err, errStopStream) {
		return nil
	}
	return err
}
