// Command genmock writes a small synthetic tagging fixture: a track file with
// two storms crossing a regular grid and a matching netCDF detection mask.
// Cells within the detection radius of a storm center are flagged, so tagging
// the pair with the default threshold covers every flagged cell.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -steps 8 -structured
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/geodesy"
)

var baseDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	stepInterval    = 6 * time.Hour
	gridLon0        = -20.0
	gridLat0        = 30.0
	gridSpacing     = 1.0 // degrees
	gridNLon        = 24
	gridNLat        = 16
	detectionRadius = 400000.0 // meters
)

// storm moves in a straight line, one grid spacing per step by default.
type storm struct {
	lon0, lat0 float64
	dLon, dLat float64
	firstStep  int
}

var storms = []storm{
	{lon0: -18, lat0: 40, dLon: 2, dLat: 0.25, firstStep: 0},
	{lon0: -2, lat0: 33, dLon: -1, dLat: 1, firstStep: 2},
}

type fixture struct {
	tracksPath string
	maskPath   string
	rows       int
	flagged    int
}

func main() {
	outDir := flag.String("out-dir", "", "directory to write tracks.txt and mask.nc into")
	steps := flag.Int("steps", 8, "number of time steps in the mask")
	structured := flag.Bool("structured", false, "write the structured (lon_index lat_index) track layout and a lat/lon grid")
	flag.Parse()

	if *outDir == "" || *steps < 1 {
		flag.Usage()
		os.Exit(1)
	}

	fx, err := generate(*outDir, *steps, *structured)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote track file: %s (%d storms, %d rows)", fx.tracksPath, len(storms), fx.rows)
	log.Printf("wrote mask: %s (%d steps, %d flagged cells)", fx.maskPath, *steps, fx.flagged)
}

func generate(outDir string, steps int, structured bool) (fixture, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fixture{}, err
	}
	fx := fixture{
		tracksPath: filepath.Join(outDir, "tracks.txt"),
		maskPath:   filepath.Join(outDir, "mask.nc"),
	}

	grid := newGrid(steps, structured)
	rows, err := writeTracks(fx.tracksPath, steps, structured)
	if err != nil {
		return fixture{}, fmt.Errorf("writing track file: %w", err)
	}
	fx.rows = rows
	fx.flagged = flagCells(grid)

	if err := netcdf.WriteGrid(fx.maskPath, grid, netcdf.Options{}); err != nil {
		return fixture{}, fmt.Errorf("writing mask: %w", err)
	}
	return fx, nil
}

func newGrid(steps int, structured bool) domain.GridField {
	n := gridNLon * gridNLat
	lons := make([]float64, 0, n)
	lats := make([]float64, 0, n)
	for j := range gridNLat {
		for i := range gridNLon {
			lons = append(lons, gridLon0+float64(i)*gridSpacing)
			lats = append(lats, gridLat0+float64(j)*gridSpacing)
		}
	}

	times := make([]time.Time, steps)
	for s := range times {
		times[s] = baseDate.Add(time.Duration(s) * stepInterval)
	}

	shape := []int{n}
	var dims []string
	if structured {
		shape = []int{gridNLat, gridNLon}
		dims = []string{"lat", "lon"}
	}
	return domain.GridField{
		Times:        times,
		SpatialShape: shape,
		SpatialDims:  dims,
		Binary:       sparse.ZerosDense(append([]int{steps}, shape...)...),
		Coords:       map[string][]float64{"lon": lons, "lat": lats},
	}
}

func (s storm) position(step int) (lon, lat float64) {
	k := float64(step - s.firstStep)
	return s.lon0 + k*s.dLon, s.lat0 + k*s.dLat
}

// flagCells marks every cell within detectionRadius of an active storm and
// returns the number of flagged values.
func flagCells(grid domain.GridField) int {
	lons, lats := grid.Coords["lon"], grid.Coords["lat"]
	flagged := 0
	for step := range grid.Times {
		binary := grid.Step(step)
		for _, s := range storms {
			if step < s.firstStep {
				continue
			}
			lon, lat := s.position(step)
			for i := range binary {
				if binary[i] == 1 {
					continue
				}
				if geodesy.Distance(lon, lat, lons[i], lats[i], geodesy.Degrees, 0) <= detectionRadius {
					binary[i] = 1
					flagged++
				}
			}
		}
	}
	return flagged
}

// writeTracks writes one block per storm. Each storm also carries a final row
// one step past the mask's time axis, which tagging must skip.
func writeTracks(path string, steps int, structured bool) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	rows := 0
	for _, s := range storms {
		first := baseDate.Add(time.Duration(s.firstStep) * stepInterval)
		n := steps - s.firstStep + 1
		fmt.Fprintf(w, "start %d %d %d %d %d\n", n, first.Year(), int(first.Month()), first.Day(), first.Hour())
		for step := s.firstStep; step <= steps; step++ {
			lon, lat := s.position(step)
			ts := baseDate.Add(time.Duration(step) * stepInterval)
			i := int((lon-gridLon0)/gridSpacing + 0.5)
			j := int((lat-gridLat0)/gridSpacing + 0.5)
			if structured {
				fmt.Fprintf(w, "%d %d ", i, j)
			} else {
				fmt.Fprintf(w, "%d ", j*gridNLon+i)
			}
			fmt.Fprintf(w, "%.4f %.4f %d %d %d %d\n", lon, lat, ts.Year(), int(ts.Month()), ts.Day(), ts.Hour())
			rows++
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return rows, f.Close()
}
