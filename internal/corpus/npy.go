package corpus

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// npyHeader is the subset of the .npy header dictionary the loader relies on.
type npyHeader struct {
	descr        string
	fortranOrder bool
	shape        []int
}

// ReadNPY reads a two-dimensional little-endian float32 or float64 array in C order.
// float64 input is narrowed to float32.
func ReadNPY(r io.Reader) ([][]float32, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(npyMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != string(npyMagic) {
		return nil, errors.New("not an npy file")
	}
	var version [2]byte
	if _, err := io.ReadFull(br, version[:]); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	var headerLen int
	switch version[0] {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("unsupported npy version %d.%d", version[0], version[1])
	}
	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	hdr, err := parseNPYHeader(string(raw))
	if err != nil {
		return nil, err
	}
	if hdr.fortranOrder {
		return nil, errors.New("fortran-ordered arrays are not supported")
	}
	if len(hdr.shape) != 2 {
		return nil, fmt.Errorf("expected a 2-d array, got shape %v", hdr.shape)
	}
	rows, cols := hdr.shape[0], hdr.shape[1]

	var width int
	switch hdr.descr {
	case "<f4", "f4":
		width = 4
	case "<f8", "f8":
		width = 8
	default:
		return nil, fmt.Errorf("unsupported dtype %q (want <f4 or <f8)", hdr.descr)
	}

	out := make([][]float32, rows)
	buf := make([]byte, cols*width)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		row := make([]float32, cols)
		for j := range row {
			if width == 4 {
				row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
			} else {
				row[j] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8:])))
			}
		}
		out[i] = row
	}
	return out, nil
}

func parseNPYHeader(s string) (*npyHeader, error) {
	hdr := &npyHeader{}
	descr, err := headerValue(s, "descr")
	if err != nil {
		return nil, err
	}
	hdr.descr = strings.Trim(descr, `'" `)

	order, err := headerValue(s, "fortran_order")
	if err != nil {
		return nil, err
	}
	hdr.fortranOrder = strings.TrimSpace(order) == "True"

	shape, err := headerValue(s, "shape")
	if err != nil {
		return nil, err
	}
	shape = strings.Trim(strings.TrimSpace(shape), "()")
	for _, part := range strings.Split(shape, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: %w", shape, err)
		}
		hdr.shape = append(hdr.shape, n)
	}
	return hdr, nil
}

// headerValue extracts the raw value for key from the python dict literal in an npy header.
func headerValue(s, key string) (string, error) {
	marker := "'" + key + "':"
	i := strings.Index(s, marker)
	if i < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	rest := strings.TrimSpace(s[i+len(marker):])
	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			return "", fmt.Errorf("npy header: unterminated %q", key)
		}
		return rest[:end+1], nil
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("npy header: unterminated %q", key)
	}
	return rest[:end], nil
}

// ReadRaw reads headerless little-endian float32 rows of dim values each.
func ReadRaw(r io.Reader, dim int) ([][]float32, error) {
	if dim <= 0 {
		return nil, errors.New("raw format requires positive dimensions")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	rowBytes := dim * 4
	if len(data)%rowBytes != 0 {
		return nil, fmt.Errorf("raw file size %d is not a multiple of %d", len(data), rowBytes)
	}
	n := len(data) / rowBytes
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*rowBytes+j*4:]))
		}
		out[i] = row
	}
	return out, nil
}

// WriteNPY writes rows as a version 1.0 little-endian float32 .npy array.
func WriteNPY(w io.Writer, rows [][]float32) error {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), cols)
	// magic(6) + version(2) + len(2) + header + '\n' must be a multiple of 64
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for i, row := range rows {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}
