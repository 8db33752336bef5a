package features

import (
	"testing"

	"github.com/cucumber/godog"

	"github.com/fluxcompute/schedulerbackend/features/steps"
)

func TestSchedulerBackendFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: steps.InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"scheduler_backend.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
