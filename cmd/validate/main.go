// Command validate checks a tagged output file: every nonzero tag must sit on
// a flagged cell of the binary detection field, and every tag must be a storm
// id in [0, max-id].
//
// Usage:
//
//	go run ./cmd/validate \
//	  -file data/mock/mask_tagged.nc \
//	  -max-id 2
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
)

// maxReported caps the per-phase error listing.
const maxReported = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	total  int
}

func (p *phase) errorf(format string, args ...any) {
	p.total++
	if len(p.errors) < maxReported {
		p.errors = append(p.errors, fmt.Sprintf(format, args...))
	}
}

func (p *phase) passed() bool { return p.total == 0 }

// report summarizes one tagged field.
type report struct {
	shape    []int
	flagged  int
	tagged   int
	perStorm map[int]int
	phases   []*phase
}

func main() {
	file := flag.String("file", "", "tagged netCDF file to check")
	binaryVar := flag.String("binary-var", netcdf.DefaultBinaryVar, "binary detection variable")
	tagVar := flag.String("tag-var", netcdf.DefaultTagVar, "storm tag variable")
	maxID := flag.Int("max-id", 0, "largest valid storm id (0 disables the upper bound)")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*file, *binaryVar, *tagVar, *maxID))
}

func run(path, binaryVar, tagVar string, maxID int) int {
	fmt.Println("=== Storm Tag Validation ===")
	fmt.Println()

	ds, err := netcdf.Open(path, netcdf.Options{BinaryVar: binaryVar, TagVar: tagVar})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	defer ds.Close()

	binary, binShape, err := ds.ReadFloat64(binaryVar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	tags, tagShape, err := ds.ReadFloat64(tagVar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if !slices.Equal(binShape, tagShape) {
		fmt.Fprintf(os.Stderr, "FATAL: %s shape %v does not match %s shape %v\n", tagVar, tagShape, binaryVar, binShape)
		return 1
	}

	r := check(binary, tags, binShape, maxID)

	allPassed := true
	for _, p := range r.phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", p.total)
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Shape %v: %d flagged cells, %d tagged cells\n", r.shape, r.flagged, r.tagged)
	ids := make([]int, 0, len(r.perStorm))
	for id := range r.perStorm {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("  storm %-6d %d cells\n", id, r.perStorm[id])
	}

	// Print detailed errors.
	for _, p := range r.phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		if p.total > len(p.errors) {
			fmt.Printf("  ... and %d more\n", p.total-len(p.errors))
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// check runs the coverage and range phases over flattened binary and tag
// values of the given shape.
func check(binary, tags []float64, shape []int, maxID int) report {
	r := report{shape: shape, perStorm: map[int]int{}}
	coverage := &phase{name: "Tags only on flagged cells"}
	idRange := &phase{name: "Tags are valid storm ids"}
	r.phases = []*phase{coverage, idRange}

	for i, tag := range tags {
		if binary[i] == 1 {
			r.flagged++
		}
		if tag == 0 {
			continue
		}
		r.tagged++
		id := int(tag)
		r.perStorm[id]++
		if binary[i] != 1 {
			coverage.errorf("cell %v: tag %d on binary value %g", unravel(i, shape), id, binary[i])
		}
		if float64(id) != tag || id < 0 || (maxID > 0 && id > maxID) {
			idRange.errorf("cell %v: tag %g outside [0, %d]", unravel(i, shape), tag, maxID)
		}
	}
	return r
}

// unravel turns a flat row-major index into per-dimension indices.
func unravel(i int, shape []int) []int {
	idx := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		idx[d] = i % shape[d]
		i /= shape[d]
	}
	return idx
}
