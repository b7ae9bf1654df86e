//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-track-tagger/internal/adapter/trackfile"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("storm-tagger-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

var (
	step0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	step1 = time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC)
)

const trackText = `start 1 2020 1 1 0
0 0.0 0.0 2020 1 1 0
start 1 2020 1 1 6
3 10.0 0.0 2020 1 1 6
`

// wantTags is the tag field of every fixture mask at a 200 km threshold.
var wantTags = []float64{1, 1, 0, 0, 0, 0, 2, 2}

// writeFixtures writes one shared track file and n four-cell masks, returning
// the track path and mask paths.
func writeFixtures(t *testing.T, dir string, n int) (string, []string) {
	t.Helper()
	binary := sparse.ZerosDense(2, 4)
	copy(binary.Elements, []float64{1, 1, 0, 0, 0, 0, 1, 1})
	grid := domain.GridField{
		Times:        []time.Time{step0, step1},
		SpatialShape: []int{4},
		Binary:       binary,
		Coords: map[string][]float64{
			"lon": {0, 1, 9, 10},
			"lat": {0, 0, 0, 0},
		},
	}
	masks := make([]string, n)
	for i := range masks {
		masks[i] = filepath.Join(dir, "mask_"+strconv.Itoa(i)+".nc")
		require.NoError(t, netcdf.WriteGrid(masks[i], grid, netcdf.Options{}))
	}
	tracks := filepath.Join(dir, "tracks.txt")
	require.NoError(t, os.WriteFile(tracks, []byte(trackText), 0o644))
	return tracks, masks
}

func newRunner(status pipeline.StatusStore, metrics *observability.Metrics) *pipeline.Runner {
	openGrid := func(path, binaryVar, tagVar string) (pipeline.GridDataset, error) {
		ds, err := netcdf.Open(path, netcdf.Options{BinaryVar: binaryVar, TagVar: tagVar})
		if err != nil {
			return nil, err
		}
		return ds, nil
	}
	cfg := pipeline.RunnerConfig{
		Tagger:    domain.Tagger{Threshold: 200000},
		BinaryVar: netcdf.DefaultBinaryVar,
		TagVar:    netcdf.DefaultTagVar,
	}
	tracks := trackfile.NewCachedLoader(trackfile.FileLoader{}, 4, metrics)
	return pipeline.NewRunner(tracks, openGrid, cfg, status, metrics, discardLogger())
}

func readTags(t *testing.T, path string) []float64 {
	t.Helper()
	ds, err := netcdf.Open(path, netcdf.Options{})
	require.NoError(t, err)
	defer ds.Close()
	vals, _, err := ds.ReadFloat64(netcdf.DefaultTagVar)
	require.NoError(t, err)
	return vals
}
