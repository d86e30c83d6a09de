// Package state holds the persisted study view-model: course selection,
// chapter topic lists, per-topic generated artifacts and their fetch status.
// All mutations are pure and return a new State.
package state

import (
	"bytes"
	"encoding/json"
)

// Status is the fetch status of one generated artifact.
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Artifact is one asynchronously generated value. Data is meaningful only in
// Success, Error only in Failure.
type Artifact[T any] struct {
	Status Status
	Data   T
	Error  string
}

// Begin moves the artifact to Loading. It reports false, leaving the artifact
// untouched, when a request is already in flight or data already exists.
// Failure may be retried.
func (a Artifact[T]) Begin() (Artifact[T], bool) {
	if a.Status == Loading || a.Status == Success {
		return a, false
	}
	return Artifact[T]{Status: Loading}, true
}

// Succeed stores data.
func (a Artifact[T]) Succeed(data T) Artifact[T] {
	return Artifact[T]{Status: Success, Data: data}
}

// Fail stores an error message.
func (a Artifact[T]) Fail(msg string) Artifact[T] {
	return Artifact[T]{Status: Failure, Error: msg}
}

// IsLoading reports whether a request is in flight.
func (a Artifact[T]) IsLoading() bool { return a.Status == Loading }

// IsZero reports whether the artifact was never requested.
func (a Artifact[T]) IsZero() bool { return a.Status == Idle }

type artifactJSON struct {
	IsLoading bool            `json:"isLoading"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *string         `json:"error,omitempty"`
}

// MarshalJSON encodes the artifact as {isLoading, data?, error?}.
func (a Artifact[T]) MarshalJSON() ([]byte, error) {
	out := artifactJSON{IsLoading: a.Status == Loading}
	switch a.Status {
	case Success:
		data, err := json.Marshal(a.Data)
		if err != nil {
			return nil, err
		}
		out.Data = data
	case Failure:
		msg := a.Error
		out.Error = &msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes {isLoading, data?, error?}. Data wins over error,
// error over isLoading.
func (a *Artifact[T]) UnmarshalJSON(b []byte) error {
	var in artifactJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*a = Artifact[T]{}
	switch {
	case len(in.Data) > 0 && !bytes.Equal(in.Data, []byte("null")):
		var data T
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return err
		}
		a.Status = Success
		a.Data = data
	case in.Error != nil:
		a.Status = Failure
		a.Error = *in.Error
	case in.IsLoading:
		a.Status = Loading
	}
	return nil
}
