package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/san-kum/motorsync/internal/dynamo"
)

var baseHeader = []string{
	"t", "mode", "master_goal", "slave_goal", "master_pos", "slave_pos",
	"master_height", "slave_height", "correction", "master_out", "slave_out",
}

// Header returns the CSV header for samples carrying ports applied outputs.
func Header(ports int) []string {
	h := append([]string(nil), baseHeader...)
	for p := 1; p <= ports; p++ {
		h = append(h, fmt.Sprintf("port%d", p))
	}
	return h
}

func row(s dynamo.Sample, ports int) []string {
	r := []string{
		strconv.FormatFloat(s.T, 'f', 4, 64),
		s.Mode,
		strconv.Itoa(s.MasterGoal),
		strconv.Itoa(s.SlaveGoal),
		strconv.Itoa(s.MasterPos),
		strconv.Itoa(s.SlavePos),
		strconv.FormatFloat(s.MasterHeight, 'f', 3, 64),
		strconv.FormatFloat(s.SlaveHeight, 'f', 3, 64),
		strconv.Itoa(s.Correction),
		strconv.Itoa(s.MasterOut),
		strconv.Itoa(s.SlaveOut),
	}
	for i := 0; i < ports; i++ {
		v := 0
		if i < len(s.Applied) {
			v = s.Applied[i]
		}
		r = append(r, strconv.Itoa(v))
	}
	return r
}

// WriteCSV writes samples with a header. The port column count is taken
// from the widest sample.
func WriteCSV(w io.Writer, samples []dynamo.Sample) error {
	ports := 0
	for _, s := range samples {
		ports = max(ports, len(s.Applied))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(ports)); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(row(s, ports)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses what WriteCSV wrote.
func ReadCSV(r io.Reader) ([]dynamo.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	if len(header) < len(baseHeader) || strings.Join(header[:len(baseHeader)], ",") != strings.Join(baseHeader, ",") {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(header, ","))
	}
	ports := len(header) - len(baseHeader)

	samples := make([]dynamo.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		s, err := parseRow(rec, ports)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRow(rec []string, ports int) (dynamo.Sample, error) {
	var s dynamo.Sample
	if len(rec) != len(baseHeader)+ports {
		return s, fmt.Errorf("expected %d fields, got %d", len(baseHeader)+ports, len(rec))
	}

	var err error
	float := func(v string) float64 {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil && err == nil {
			err = perr
		}
		return f
	}
	integer := func(v string) int {
		n, perr := strconv.Atoi(v)
		if perr != nil && err == nil {
			err = perr
		}
		return n
	}

	s.T = float(rec[0])
	s.Mode = rec[1]
	s.MasterGoal = integer(rec[2])
	s.SlaveGoal = integer(rec[3])
	s.MasterPos = integer(rec[4])
	s.SlavePos = integer(rec[5])
	s.MasterHeight = float(rec[6])
	s.SlaveHeight = float(rec[7])
	s.Correction = integer(rec[8])
	s.MasterOut = integer(rec[9])
	s.SlaveOut = integer(rec[10])
	if ports > 0 {
		s.Applied = make([]int, ports)
		for i := range s.Applied {
			s.Applied[i] = integer(rec[len(baseHeader)+i])
		}
	}
	return s, err
}
