package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/bayneri/slareport/internal/analyze"
)

const alignmentPeriod = 60 * time.Second

// GCPSource reads per-minute counter sums from Cloud Monitoring.
type GCPSource struct {
	metricClient *monitoring.MetricClient
}

func NewGCPSource(ctx context.Context, opts ...option.ClientOption) (*GCPSource, error) {
	metricClient, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric client: %w", err)
	}
	return &GCPSource{metricClient: metricClient}, nil
}

func (s *GCPSource) Close() error {
	if err := s.metricClient.Close(); err != nil {
		return fmt.Errorf("close metric client: %w", err)
	}
	return nil
}

// FetchAlignedSeries lists every series matching filter with a 60s ALIGN_SUM
// aligner and folds the points into minute buckets. NotFound from the backend
// is reported as analyze.ErrMetricNotFound.
func (s *GCPSource) FetchAlignedSeries(ctx context.Context, project string, start, end time.Time, filter string) (analyze.AlignedSeries, error) {
	name, err := analyze.ProjectResourceName(project)
	if err != nil {
		return nil, err
	}
	it := s.metricClient.ListTimeSeries(ctx, buildRequest(name, start, end, filter))
	samples, err := collectSamples(it)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, analyze.ErrMetricNotFound
		}
		return nil, &analyze.MetricQueryError{Project: project, Filter: filter, Err: err}
	}
	return analyze.Align(samples, start, end), nil
}

func buildRequest(name string, start, end time.Time, filter string) *monitoringpb.ListTimeSeriesRequest {
	return &monitoringpb.ListTimeSeriesRequest{
		Name:   name,
		Filter: filter,
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(start),
			EndTime:   timestamppb.New(end),
		},
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:  durationpb.New(alignmentPeriod),
			PerSeriesAligner: monitoringpb.Aggregation_ALIGN_SUM,
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}
}

type seriesIterator interface {
	Next() (*monitoringpb.TimeSeries, error)
}

// collectSamples drains it. Points are keyed by interval start, falling back
// to the end time for gauges that carry no start.
func collectSamples(it seriesIterator) ([]analyze.Sample, error) {
	var out []analyze.Sample
	for {
		ts, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, point := range ts.GetPoints() {
			value, ok := pointValue(point)
			if !ok {
				continue
			}
			interval := point.GetInterval()
			stamp := interval.GetStartTime()
			if stamp == nil {
				stamp = interval.GetEndTime()
			}
			if stamp == nil {
				continue
			}
			out = append(out, analyze.Sample{Timestamp: stamp.AsTime(), Value: value})
		}
	}
	return out, nil
}

func pointValue(point *monitoringpb.Point) (float64, bool) {
	if point.GetValue() == nil {
		return 0, false
	}
	switch v := point.GetValue().GetValue().(type) {
	case *monitoringpb.TypedValue_Int64Value:
		return float64(v.Int64Value), true
	case *monitoringpb.TypedValue_DoubleValue:
		return v.DoubleValue, true
	default:
		return 0, false
	}
}
