package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// fileMagic identifies the flat vector index format on disk. Any file not
// starting with this magic is treated as corrupt and triggers a rebuild.
const fileMagic uint32 = 0xACE0FA15

// formatVersion allows the on-disk layout to evolve; readHeader refuses to read a
// version it doesn't understand rather than guessing at record layout.
const formatVersion uint32 = 1

// header is the fixed-size prologue of an index file.
type header struct {
	Magic      uint32
	Version    uint32
	Dimensions uint32
	Metric     uint8 // metricL2 or metricCosine
	Count      uint32
}

const headerSize = 4 + 4 + 4 + 1 + 4

const (
	metricL2     uint8 = 0
	metricCosine uint8 = 1
)

func metricByte(metric string) uint8 {
	if metric == "cosine" {
		return metricCosine
	}
	return metricL2
}

func metricName(b uint8) string {
	if b == metricCosine {
		return "cosine"
	}
	return "l2"
}

func writeHeader(w io.Writer, h header) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimensions)
	buf[12] = h.Metric
	binary.LittleEndian.PutUint32(buf[13:17], h.Count)
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader) (header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return header{}, fmt.Errorf("read header: %w", err)
	}
	h := header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		Dimensions: binary.LittleEndian.Uint32(buf[8:12]),
		Metric:     buf[12],
		Count:      binary.LittleEndian.Uint32(buf[13:17]),
	}
	if h.Magic != fileMagic {
		return header{}, fmt.Errorf("not a vector index file (bad magic %x)", h.Magic)
	}
	if h.Version != formatVersion {
		return header{}, fmt.Errorf("unsupported index format version %d", h.Version)
	}
	return h, nil
}

// record is one (id, vector) entry: an 8-byte little-endian id followed by
// Dimensions little-endian float32 components.
func writeRecord(w io.Writer, id int64, vec []float32) error {
	buf := make([]byte, 8+4*len(vec))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(id))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[8+4*i:12+4*i], math.Float32bits(f))
	}
	_, err := w.Write(buf)
	return err
}

func readRecord(r *bufio.Reader, dims int) (int64, []float32, error) {
	buf := make([]byte, 8+4*dims)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	id := int64(binary.LittleEndian.Uint64(buf[0:8]))
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+4*i : 12+4*i]))
	}
	return id, vec, nil
}
