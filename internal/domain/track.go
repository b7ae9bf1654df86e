package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTrack is wrapped by every track file parse failure.
var ErrMalformedTrack = errors.New("malformed track file")

// MeshMode selects the data-line layout of a track file.
type MeshMode int

const (
	// Unstructured lines are "cell_id lon lat ... year month day hour".
	Unstructured MeshMode = iota
	// Structured lines are "lon_index lat_index lon lat ... year month day hour".
	Structured
)

func (m MeshMode) String() string {
	if m == Structured {
		return "structured"
	}
	return "unstructured"
}

// ParseMeshMode accepts "structured" or "unstructured"; empty means unstructured.
func ParseMeshMode(s string) (MeshMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unstructured":
		return Unstructured, nil
	case "structured":
		return Structured, nil
	default:
		return 0, fmt.Errorf("unknown mesh mode %q", s)
	}
}

// StormObservation is one storm center at one time step.
type StormObservation struct {
	StormID int     `json:"storm_id"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Day     int     `json:"day"`
	Hour    int     `json:"hour"`

	// CellID is set for unstructured meshes.
	CellID int `json:"cell_id,omitempty"`
	// LonIndex and LatIndex are set for structured grids.
	LonIndex int `json:"lon_index,omitempty"`
	LatIndex int `json:"lat_index,omitempty"`
}

// Time returns the observation instant in UTC at hour resolution.
func (o StormObservation) Time() time.Time {
	return time.Date(o.Year, time.Month(o.Month), o.Day, o.Hour, 0, 0, 0, time.UTC)
}

// Key returns the observation's hour-resolution timestamp key.
func (o StormObservation) Key() TimeKey {
	return NewTimeKey(o.Year, o.Month, o.Day, o.Hour)
}

// StormHeader records a "start" line.
type StormHeader struct {
	ID            int       `json:"id"`
	DeclaredSteps int       `json:"declared_steps"`
	Start         time.Time `json:"start"`
}

// TrackTable holds observations in file order. It is never deduplicated.
type TrackTable struct {
	Mode         MeshMode
	Storms       []StormHeader
	Observations []StormObservation
}

// StepMismatch describes a storm whose row count differs from its header.
type StepMismatch struct {
	StormID  int
	Declared int
	Observed int
}

// StepMismatches lists storms whose declared step count does not match the
// number of data lines that followed the header.
func (t TrackTable) StepMismatches() []StepMismatch {
	counts := make(map[int]int, len(t.Storms))
	for _, o := range t.Observations {
		counts[o.StormID]++
	}
	var out []StepMismatch
	for _, s := range t.Storms {
		if counts[s.ID] != s.DeclaredSteps {
			out = append(out, StepMismatch{StormID: s.ID, Declared: s.DeclaredSteps, Observed: counts[s.ID]})
		}
	}
	return out
}

// ParseError reports the line at which a track file could not be parsed.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("track line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseTracks reads a track file. Storm IDs start at 1 and increment once per
// "start" line; data lines belong to the most recent storm.
func ParseTracks(r io.Reader, mode MeshMode) (TrackTable, error) {
	table := TrackTable{Mode: mode}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	stormID := 0
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "start" {
			header, err := parseStartLine(fields, stormID+1)
			if err != nil {
				return TrackTable{}, &ParseError{Line: lineNo, Err: err}
			}
			stormID = header.ID
			table.Storms = append(table.Storms, header)
			continue
		}

		if stormID == 0 {
			return TrackTable{}, &ParseError{Line: lineNo, Err: fmt.Errorf("%w: data line before any start line", ErrMalformedTrack)}
		}
		obs, err := parseDataLine(fields, mode)
		if err != nil {
			return TrackTable{}, &ParseError{Line: lineNo, Err: err}
		}
		obs.StormID = stormID
		table.Observations = append(table.Observations, obs)
	}
	if err := sc.Err(); err != nil {
		return TrackTable{}, fmt.Errorf("read track file: %w", err)
	}
	return table, nil
}

// parseStartLine handles "start <num_timesteps> <year> <month> <day> <hour>".
func parseStartLine(fields []string, id int) (StormHeader, error) {
	if len(fields) != 6 {
		return StormHeader{}, fmt.Errorf("%w: start line needs 5 fields, got %d", ErrMalformedTrack, len(fields)-1)
	}
	var v [5]int
	for i := range v {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return StormHeader{}, fmt.Errorf("%w: start field %d: %v", ErrMalformedTrack, i+1, err)
		}
		v[i] = n
	}
	if v[0] < 0 {
		return StormHeader{}, fmt.Errorf("%w: negative step count %d", ErrMalformedTrack, v[0])
	}
	return StormHeader{
		ID:            id,
		DeclaredSteps: v[0],
		Start:         time.Date(v[1], time.Month(v[2]), v[3], v[4], 0, 0, 0, time.UTC),
	}, nil
}

func parseDataLine(fields []string, mode MeshMode) (StormObservation, error) {
	// Leading id/coordinate columns plus the trailing year month day hour.
	lead := 3
	if mode == Structured {
		lead = 4
	}
	if len(fields) < lead+4 {
		return StormObservation{}, fmt.Errorf("%w: %s data line needs at least %d columns, got %d",
			ErrMalformedTrack, mode, lead+4, len(fields))
	}

	var obs StormObservation
	p := fieldParser{fields: fields}
	switch mode {
	case Structured:
		obs.LonIndex = p.atoi(0, "lon_index")
		obs.LatIndex = p.atoi(1, "lat_index")
		obs.Lon = p.atof(2, "lon")
		obs.Lat = p.atof(3, "lat")
	default:
		obs.CellID = p.atoi(0, "cell_id")
		obs.Lon = p.atof(1, "lon")
		obs.Lat = p.atof(2, "lat")
	}
	n := len(fields)
	obs.Year = p.atoi(n-4, "year")
	obs.Month = p.atoi(n-3, "month")
	obs.Day = p.atoi(n-2, "day")
	obs.Hour = p.atoi(n-1, "hour")
	if p.err != nil {
		return StormObservation{}, p.err
	}
	return obs, nil
}

// fieldParser keeps the first conversion error so a data line can be decoded
// column by column without an if after every field.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) atoi(i int, name string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = fmt.Errorf("%w: column %s: %v", ErrMalformedTrack, name, err)
	}
	return v
}

func (p *fieldParser) atof(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = fmt.Errorf("%w: column %s: %v", ErrMalformedTrack, name, err)
	}
	return v
}
