package botsync

import (
	"errors"
	"fmt"
)

var ErrRemoteCall = errors.New("studio call failed")

// RemoteCallError reports a failed studio call: transport failure, non-2xx
// status or an undecodable response.
type RemoteCallError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RemoteCallError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s: %s %s: http %d %s: %s", e.Op, e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s %s: http %d: %s", e.Op, e.Method, e.Path, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %s %s failed", e.Op, e.Method, e.Path)
	}
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCall
}
