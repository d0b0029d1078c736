package metrics

import (
	"strings"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "volregime")
				So(manager.enabled, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sampler"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithMetricsEnabled(false),
				WithConstLabels(map[string]string{"dataset": "brent"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "sampler")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 10, 100})
				So(manager.enabled, ShouldBeFalse)
				So(manager.constLabels["dataset"], ShouldEqual, "brent")
			})

			Convey("And the metrics should be registered on the custom registry", func() {
				manager.samplerChainsCompleted.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "volregime")
				So(manager.subsystem, ShouldEqual, "engine")
				So(len(manager.histogramBuckets), ShouldEqual, defaultBucketCount)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording sampler metrics", func() {
			before := testutil.ToFloat64(globalManager.samplerChainsCompleted)
			RecordChainCompleted(float64((250 * time.Millisecond).Milliseconds()))
			RecordSamplerIterations("tune", 1000)
			RecordSamplerIterations("draw", 2000)
			UpdateChainParameter("0", "tau_1", 0.35, 4)

			Convey("Then counters and gauges should move", func() {
				So(testutil.ToFloat64(globalManager.samplerChainsCompleted), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.samplerAcceptance.WithLabelValues("0", "tau_1")), ShouldEqual, 0.35)
				So(testutil.ToFloat64(globalManager.samplerStepSize.WithLabelValues("0", "tau_1")), ShouldEqual, 4)
			})
		})

		Convey("When recording undefined diagnostics", func() {
			UpdatePosteriorDiagnostics("mu", math.NaN(), math.Inf(1))

			Convey("Then they are exported as -1", func() {
				So(testutil.ToFloat64(globalManager.posteriorRHat.WithLabelValues("mu")), ShouldEqual, -1)
				So(testutil.ToFloat64(globalManager.posteriorESS.WithLabelValues("mu")), ShouldEqual, -1)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then nothing should panic", func() {
				So(func() {
					RecordSegmentation(12, 3)
					RecordSegmentationInsufficient()
					RecordChainCancelled()
					RecordSamplerDegenerate("sigma_1")
					UpdateQueueCapacity(4)
					UpdateQueueSize(2)
					RecordQueueEnqueue()
					RecordQueueEnqueueError()
					AddWorkerActive(1)
					AddWorkerActive(-1)
					RecordWorkerJobLatency(10)
					RecordWorkerError()
					RecordEventsMatched(2, 5)
					RecordPipelineRun("ok")
					RecordStageDuration("sample", 100)
					RecordErrorByComponent("sampler", "cancelled")
				}, ShouldNotPanic)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given metrics initialized from configuration", t, func() {
		Init(
			WithNamespace("brent"),
			WithSubsystem("analysis"),
			WithConstLabels(map[string]string{"dataset": "brent"}),
			WithHistogramBuckets([]float64{1, 10}),
		)
		defer Init()

		RecordPipelineRun("ok")
		RecordStageDuration("sample", 5)

		Convey("Then every family on the new registry carries the configured prefix and labels", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldNotBeEmpty)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "brent_analysis_"), ShouldBeTrue)
				So(f.GetMetric()[0].GetLabel(), ShouldNotBeEmpty)
			}
		})

		Convey("And disabling collection stops recording", func() {
			Init(WithMetricsEnabled(false))
			RecordPipelineRun("ok")
			So(testutil.ToFloat64(globalManager.pipelineRuns.WithLabelValues("ok")), ShouldEqual, 0)
		})
	})
}
