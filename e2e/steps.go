package e2e

import (
	"github.com/cucumber/godog"

	"plcwatch/e2e/steps/common"
	"plcwatch/e2e/steps/timeline"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	timeline.RegisterSteps(ctx, tc)
}
