package progress

import "io"

// Reader wraps an io.Reader and publishes the cumulative number of bytes read
// to a Throttler. It lets the transport's own body reads drive progress
// reporting while a request body is being transmitted.
type Reader struct {
	r    io.Reader
	t    *Throttler
	read int64
}

// NewReader ...
func NewReader(r io.Reader, t *Throttler) *Reader {
	return &Reader{r: r, t: t}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.t.Publish(r.read)
	}
	return n, err
}
