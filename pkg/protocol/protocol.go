package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Requests and responses are single lines terminated by "\r\n":
//
//	[get] <key>
//	[put] <key> <value>
//	[del] <key>
//
//	[ok]
//	[value] <value>
//	[notfound]
//	[error] <message>
//
// Keys cannot contain spaces, '\r' or '\n'. Values may contain anything but
// the terminator.
const (
	Terminator = "\r\n"

	DefaultMaxLineSize = 1 << 20
)

const (
	OpGet byte = iota + 1
	OpPut
	OpDel
)

const (
	RespOK       = "[ok]"
	RespValue    = "[value]"
	RespNotFound = "[notfound]"
	RespErr      = "[error]"
)

var (
	ErrMalformed   = errors.New("protocol: malformed line")
	ErrLineTooLong = errors.New("protocol: line too long")
	ErrInvalidKey  = errors.New("protocol: invalid key")
	ErrInvalidData = errors.New("protocol: value contains line terminator")
)

var verbs = map[byte]string{
	OpGet: "[get]",
	OpPut: "[put]",
	OpDel: "[del]",
}

func VerbName(op byte) string {
	if v, ok := verbs[op]; ok {
		return v
	}
	return fmt.Sprintf("[op %d]", op)
}

type Request struct {
	Op    byte
	Key   []byte
	Value []byte
}

func (r *Request) Validate() error {
	if _, ok := verbs[r.Op]; !ok {
		return fmt.Errorf("%w: unknown op %d", ErrMalformed, r.Op)
	}
	if err := validateKey(r.Key); err != nil {
		return err
	}
	if bytes.Contains(r.Value, []byte(Terminator)) {
		return ErrInvalidData
	}
	if r.Op != OpPut && len(r.Value) > 0 {
		return fmt.Errorf("%w: %s takes no value", ErrMalformed, VerbName(r.Op))
	}
	return nil
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if bytes.ContainsAny(key, " \r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Encode writes req as one line.
func Encode(w io.Writer, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Grow(len(req.Key) + len(req.Value) + 16)
	buf.WriteString(verbs[req.Op])
	buf.WriteByte(' ')
	buf.Write(req.Key)
	if req.Op == OpPut {
		buf.WriteByte(' ')
		buf.Write(req.Value)
	}
	buf.WriteString(Terminator)
	_, err := w.Write(buf.Bytes())
	return err
}

// ParseRequest decodes a line with its terminator already removed.
func ParseRequest(line []byte) (*Request, error) {
	parts := bytes.SplitN(line, []byte{' '}, 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	req := &Request{Key: parts[1]}
	switch string(parts[0]) {
	case "[get]":
		req.Op = OpGet
	case "[put]":
		req.Op = OpPut
	case "[del]":
		req.Op = OpDel
	default:
		return nil, fmt.Errorf("%w: unknown verb %q", ErrMalformed, parts[0])
	}

	if req.Op == OpPut {
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: [put] missing value", ErrMalformed)
		}
		req.Value = parts[2]
	} else if len(parts) == 3 {
		return nil, fmt.Errorf("%w: %s takes one argument", ErrMalformed, parts[0])
	}
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	return req, nil
}

type Response struct {
	Status string
	Value  []byte
}

func EncodeResponse(w io.Writer, resp *Response) error {
	var buf bytes.Buffer
	buf.WriteString(resp.Status)
	switch resp.Status {
	case RespValue, RespErr:
		val := resp.Value
		if bytes.Contains(val, []byte(Terminator)) {
			if resp.Status == RespValue {
				return ErrInvalidData
			}
			val = bytes.ReplaceAll(val, []byte(Terminator), []byte(" "))
		}
		buf.WriteByte(' ')
		buf.Write(val)
	case RespOK, RespNotFound:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrMalformed, resp.Status)
	}
	buf.WriteString(Terminator)
	_, err := w.Write(buf.Bytes())
	return err
}

func ParseResponse(line []byte) (*Response, error) {
	status, rest, hasRest := bytes.Cut(line, []byte{' '})
	resp := &Response{Status: string(status)}
	switch resp.Status {
	case RespValue, RespErr:
		if !hasRest {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		resp.Value = rest
	case RespOK, RespNotFound:
		if hasRest {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, status)
	}
	return resp, nil
}

// Reader splits a stream into "\r\n"-terminated lines. A bare '\n' or '\r'
// is ordinary line content.
type Reader struct {
	r       *bufio.Reader
	maxLine int
}

func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &Reader{r: bufio.NewReader(r), maxLine: maxLine}
}

// ReadLine returns the next line without its terminator. A line longer than
// the limit is consumed and reported as ErrLineTooLong, so the stream stays
// usable.
func (r *Reader) ReadLine() ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > r.maxLine+len(Terminator) {
			tooLong = true
		}
		if tooLong && len(line) > len(Terminator) {
			// only the tail is needed to spot a terminator split across chunks
			line = append(line[:0], line[len(line)-len(Terminator):]...)
		}

		switch {
		case err == nil:
			if bytes.HasSuffix(line, []byte(Terminator)) {
				if tooLong {
					return nil, ErrLineTooLong
				}
				return line[:len(line)-len(Terminator)], nil
			}
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			if len(line) == 0 && !tooLong {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

func (r *Reader) ReadRequest() (*Request, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	return ParseRequest(line)
}

func (r *Reader) ReadResponse() (*Response, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	return ParseResponse(line)
}
