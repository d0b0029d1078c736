package config_test

import (
	"testing"

	"github.com/okian/volregime/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the analysis defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.Segmentation.PenaltyFactor, convey.ShouldEqual, 3)
			convey.So(cfg.Segmentation.MinSize, convey.ShouldEqual, 2)
			convey.So(cfg.Model.Regimes, convey.ShouldEqual, 2)
			convey.So(cfg.Model.MuPriorSigma, convey.ShouldEqual, 0.01)
			convey.So(cfg.Model.SigmaPriorScale, convey.ShouldEqual, 0.1)
			convey.So(cfg.Sampler.Draws, convey.ShouldEqual, 2000)
			convey.So(cfg.Sampler.Tune, convey.ShouldEqual, 1000)
			convey.So(cfg.Sampler.Chains, convey.ShouldEqual, 4)
			convey.So(cfg.Sampler.Seed, convey.ShouldEqual, 42)
			convey.So(cfg.Events.WindowDays, convey.ShouldEqual, 60)
			convey.So(cfg.Events.ImpactWindow, convey.ShouldEqual, 30)
			convey.So(cfg.Volatility.RollingWindow, convey.ShouldEqual, 180)
			convey.So(cfg.Volatility.PeriodsPerYear, convey.ShouldEqual, 252)
			convey.So(cfg.Metrics.Enabled, convey.ShouldBeTrue)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "volregime")
			convey.So(cfg.Metrics.Subsystem, convey.ShouldEqual, "engine")
			convey.So(cfg.Data.DateColumn, convey.ShouldEqual, "Date")
		})
	})
}
