package resp

import (
	"bufio"
	"fmt"
)

var crlf = []byte("\r\n")

// Encoder serializes a pipeline of requests onto a *bufio.Writer, the
// same buffered-writer shape the teacher's TcpRawClient holds in its
// bufio.ReadWriter. Requests accumulate in the writer's buffer and are
// pushed to the socket by one Flush at the end of the pipeline, matching
// spec.md §4.2's "single flush at the end" rule; a pipeline larger than
// the buffer is partly written earlier, as bufio.Writer does when full.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w *bufio.Writer) *Encoder {
	return &Encoder{w: w}
}

// EncodeRequest buffers one request: *N\r\n followed by $len\r\n<bytes>\r\n
// for each argument. A request with no arguments (a synthetic/dummy
// request never reaches here, but a genuinely empty argument list would)
// writes nothing, per spec.md §4.2.
func (e *Encoder) EncodeRequest(args [][]byte) error {
	if len(args) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(e.w, "*%d\r\n", len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := fmt.Fprintf(e.w, "$%d\r\n", len(a)); err != nil {
			return err
		}
		if _, err := e.w.Write(a); err != nil {
			return err
		}
		if _, err := e.w.Write(crlf); err != nil {
			return err
		}
	}
	return nil
}

// Flush pushes everything buffered since the last Flush to the socket.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}
