package framing

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
)

// DefaultBoundary is the multipart boundary used on every MJPEG response.
const DefaultBoundary = "frame"

// MultipartWriter writes frames as parts of a multipart/x-mixed-replace body.
type MultipartWriter struct {
	w        io.Writer
	boundary string
}

// NewMultipartWriter returns a writer using DefaultBoundary.
func NewMultipartWriter(w io.Writer) *MultipartWriter {
	return &MultipartWriter{w: w, boundary: DefaultBoundary}
}

// SetBoundary overrides the boundary. It must be called before the first
// WriteFrame.
func (mw *MultipartWriter) SetBoundary(b string) error {
	if b == "" || len(b) > 70 {
		return fmt.Errorf("framing: invalid boundary %q", b)
	}
	mw.boundary = b
	return nil
}

// ContentType returns the response Content-Type that announces the boundary.
func (mw *MultipartWriter) ContentType() string {
	return ContentType(mw.boundary)
}

// ContentType builds the multipart/x-mixed-replace media type for boundary.
func ContentType(boundary string) string {
	return "multipart/x-mixed-replace; boundary=" + boundary
}

// WriteFrame writes one JPEG part and flushes. Empty frames are skipped by
// callers; here they are rejected.
func (mw *MultipartWriter) WriteFrame(jpeg []byte) error {
	if len(jpeg) == 0 {
		return ErrEmptyFrame
	}
	header := "--" + mw.boundary + "\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Length: " + strconv.Itoa(len(jpeg)) + "\r\n\r\n"
	if _, err := io.WriteString(mw.w, header); err != nil {
		return err
	}
	if _, err := mw.w.Write(jpeg); err != nil {
		return err
	}
	if _, err := io.WriteString(mw.w, "\r\n"); err != nil {
		return err
	}
	return Flush(mw.w)
}

// MultipartReader decodes a multipart/x-mixed-replace body into frames.
type MultipartReader struct {
	mr *multipart.Reader
}

// NewMultipartReader builds a reader from the response Content-Type header.
func NewMultipartReader(r io.Reader, contentType string) (*MultipartReader, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("framing: parse content type: %w", err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		return nil, fmt.Errorf("framing: unexpected media type %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("framing: missing boundary")
	}
	return &MultipartReader{mr: multipart.NewReader(r, boundary)}, nil
}

// NextFrame returns the body of the next part. If the part carries a
// Content-Length header the body must match it.
func (r *MultipartReader) NextFrame() ([]byte, error) {
	part, err := r.mr.NextPart()
	if err != nil {
		return nil, err
	}
	defer part.Close()

	if cl := part.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > MaxFrameSize {
			return nil, fmt.Errorf("framing: bad part length %q", cl)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(part, buf); err != nil {
			return nil, fmt.Errorf("framing: short part: %w", err)
		}
		return buf, nil
	}
	return io.ReadAll(io.LimitReader(part, MaxFrameSize))
}
