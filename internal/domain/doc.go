// Package domain attributes storm-detection grid cells to individual storm
// tracks.
//
// # Inputs
//
// Track files come from a stitching toolkit run over detected storm centers.
// Each storm opens with a header line followed by one line per time step:
//
//	start <num_timesteps> <year> <month> <day> <hour>
//	<cell_id> <lon> <lat> ... <year> <month> <day> <hour>          (unstructured)
//	<lon_index> <lat_index> <lon> <lat> ... <year> <month> <day> <hour>  (structured)
//
// The number of middle columns varies with the stitching options, so the
// calendar fields are always read from the last four tokens. Storm IDs are
// assigned in file order starting at 1; the declared step count is parsed but
// only reported when it disagrees with the rows that follow.
//
// The binary detection field is a 0/1 grid indexed by time and space, either a
// flat list of cells (unstructured mesh) or lat/lon axes (structured grid).
// Cell coordinates are looked up as lon/lat first and longitude/latitude
// second. See [ResolveCoordinates].
//
// # Timestamps
//
// Track times have hour resolution. Observations are grouped by a
// YYYY-MM-DDTHH key (see [TimeKey]) and each group is matched against the
// grid time axis by exact instant. Groups with no matching grid time are
// dropped without error because detection and tracking are often run over
// slightly different periods.
//
// # Assignment
//
// For every matched time step, each storm in the group is applied in table
// order: a flagged cell within the distance threshold of the storm center
// (great-circle, law of cosines, default 1,010 km on a 6,371.22 km sphere)
// receives the storm ID. Later storms overwrite earlier ones in the same step.
// The output starts at zero on every run; there is no merge with a previous
// output. See [Tagger.AssignIDs].
package domain
