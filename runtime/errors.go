package runtime

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrEmptyRun        = errors.New("run needs an input or a resume command")
	ErrInputAndCommand = errors.New("run input and resume command are mutually exclusive")
	ErrUnknownDecision = errors.New("unknown resume decision")
)

// TransportError is the single terminal failure of one request or run.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s failed: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func readStatusError(op string, resp *http.Response) error {
	must(resp != nil, "http response must not be nil")
	must(resp.Body != nil, "http response body must not be nil")
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	return &TransportError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
