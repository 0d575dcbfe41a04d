package workflows_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
	"github.com/wajahatashraf/beacon-scraper/internal/workflows"
)

var (
	target = domain.Target{Name: "Scott County IA", URL: "https://beacon.example/?AppID=1"}
	zoning = domain.Layer{ID: 7, Name: "Zoning"}
)

type ScrapeWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env  *testsuite.TestWorkflowEnvironment
	acts *workflows.ScrapeActivities
	runs []domain.Run
}

func TestScrapeWorkflowSuite(t *testing.T) {
	suite.Run(t, new(ScrapeWorkflowSuite))
}

func (s *ScrapeWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(workflows.LayerWorkflow)
	s.env.RegisterWorkflow(workflows.TargetWorkflow)
	s.env.RegisterActivity(s.acts)
	s.runs = nil
}

// captureRuns records every run the workflow stores.
func (s *ScrapeWorkflowSuite) captureRuns() {
	s.env.OnActivity(s.acts.RecordRun, mock.Anything, mock.Anything).Return(
		func(_ context.Context, run domain.Run) error {
			s.runs = append(s.runs, run)
			return nil
		})
}

func (s *ScrapeWorkflowSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ScrapeWorkflowSuite) lastRun() domain.Run {
	s.Require().NotEmpty(s.runs)
	return s.runs[len(s.runs)-1]
}

func (s *ScrapeWorkflowSuite) layerInput(maxPasses int) workflows.LayerInput {
	return workflows.LayerInput{Target: target, Layer: zoning, SRID: 2235, MaxPasses: maxPasses, PassPause: 3 * time.Second}
}

func (s *ScrapeWorkflowSuite) TestLayer_CompletesAfterRetryPass() {
	s.captureRuns()
	s.env.OnActivity(s.acts.SeedLayer, mock.Anything, target, zoning).Return(true, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, 0).Return(162, nil).Once()
	s.env.OnActivity(s.acts.DownloadPass, mock.Anything, target, zoning).
		Return(usecases.PassStats{Attempted: 162, Succeeded: 130, Failed: 32}, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, 1).Return(32, nil).Once()
	s.env.OnActivity(s.acts.DownloadPass, mock.Anything, target, zoning).
		Return(usecases.PassStats{Attempted: 32, Succeeded: 32}, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, 2).Return(0, nil).Once()
	s.env.OnActivity(s.acts.IngestLayer, mock.Anything, target, zoning, 2235).
		Return(usecases.IngestResult{Files: 162, Inserted: 400}, nil).Once()
	s.env.OnActivity(s.acts.ExportLayer, mock.Anything, target, zoning).
		Return(usecases.ExportResult{Rows: 400, Exported: 380}, nil).Once()

	s.env.ExecuteWorkflow(workflows.LayerWorkflow, s.layerInput(10))

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var rep usecases.LayerReport
	s.NoError(s.env.GetWorkflowResult(&rep))
	s.Equal(domain.RunStatusDone, rep.Status)
	s.Equal(usecases.LoopResult{Passes: 2, Missing: 0}, rep.Download)
	s.True(rep.Seeded)
	s.Equal(400, rep.Ingest.Inserted)

	last := s.lastRun()
	s.Equal(domain.RunStatusDone, last.Status)
	s.Equal(400, last.Features)
	s.Equal(2, last.Passes)
	s.Empty(last.ErrorMessage)
}

func (s *ScrapeWorkflowSuite) TestLayer_BudgetExhaustedStillIngests() {
	s.captureRuns()
	s.env.OnActivity(s.acts.SeedLayer, mock.Anything, target, zoning).Return(false, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, mock.Anything).Return(3, nil).Times(3)
	s.env.OnActivity(s.acts.DownloadPass, mock.Anything, target, zoning).
		Return(usecases.PassStats{Attempted: 3, Failed: 3}, nil).Twice()
	s.env.OnActivity(s.acts.IngestLayer, mock.Anything, target, zoning, 2235).
		Return(usecases.IngestResult{Inserted: 10}, nil).Once()
	s.env.OnActivity(s.acts.ExportLayer, mock.Anything, target, zoning).
		Return(usecases.ExportResult{Rows: 10, Exported: 10}, nil).Once()

	s.env.ExecuteWorkflow(workflows.LayerWorkflow, s.layerInput(2))

	s.NoError(s.env.GetWorkflowError())
	var rep usecases.LayerReport
	s.NoError(s.env.GetWorkflowResult(&rep))
	s.Equal(domain.RunStatusIncomplete, rep.Status)
	s.Equal(usecases.LoopResult{Passes: 2, Missing: 3}, rep.Download)

	last := s.lastRun()
	s.Equal(domain.RunStatusIncomplete, last.Status)
	s.Equal(3, last.Missing)
	s.Contains(last.ErrorMessage, domain.ErrRetryBudgetExhausted.Error())
	s.Equal(usecases.RetryBudgetError(3, 2).Error(), last.ErrorMessage)
}

func (s *ScrapeWorkflowSuite) TestLayer_AlreadyCompleteSkipsDownload() {
	s.captureRuns()
	s.env.OnActivity(s.acts.SeedLayer, mock.Anything, target, zoning).Return(false, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, 0).Return(0, nil).Once()
	s.env.OnActivity(s.acts.IngestLayer, mock.Anything, target, zoning, 2235).
		Return(usecases.IngestResult{Inserted: 5}, nil).Once()
	s.env.OnActivity(s.acts.ExportLayer, mock.Anything, target, zoning).
		Return(usecases.ExportResult{Rows: 5, Exported: 5}, nil).Once()

	s.env.ExecuteWorkflow(workflows.LayerWorkflow, s.layerInput(10))

	s.NoError(s.env.GetWorkflowError())
	var rep usecases.LayerReport
	s.NoError(s.env.GetWorkflowResult(&rep))
	s.Equal(0, rep.Download.Passes)
	s.Equal(domain.RunStatusDone, rep.Status)
}

func (s *ScrapeWorkflowSuite) TestLayer_IngestFailureRecorded() {
	s.captureRuns()
	s.env.OnActivity(s.acts.SeedLayer, mock.Anything, target, zoning).Return(false, nil).Once()
	s.env.OnActivity(s.acts.Reconcile, mock.Anything, target, zoning, 0).Return(0, nil).Once()
	s.env.OnActivity(s.acts.IngestLayer, mock.Anything, target, zoning, 2235).
		Return(usecases.IngestResult{}, errors.New("relation locked"))

	s.env.ExecuteWorkflow(workflows.LayerWorkflow, s.layerInput(10))

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	last := s.lastRun()
	s.Equal(domain.RunStatusFailed, last.Status)
	s.Contains(last.ErrorMessage, "relation locked")
}

func (s *ScrapeWorkflowSuite) TestTarget_RunsEveryLayer() {
	parcels := domain.Layer{ID: 9, Name: "Zoning Overlay"}
	s.env.OnActivity(s.acts.Prepare, mock.Anything, target).
		Return(domain.PortalInfo{SRID: 2235, Layers: []domain.Layer{zoning, parcels}}, nil).Once()
	s.env.OnWorkflow(workflows.LayerWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, in workflows.LayerInput) (usecases.LayerReport, error) {
			if in.Layer.ID == parcels.ID {
				return usecases.LayerReport{}, errors.New("boom")
			}
			return usecases.LayerReport{Layer: in.Layer, Status: domain.RunStatusDone}, nil
		}).Twice()

	s.env.ExecuteWorkflow(workflows.TargetWorkflow, workflows.TargetInput{Target: target, MaxPasses: 3})

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "1 of 2 layers failed")
}

func (s *ScrapeWorkflowSuite) TestTarget_PrepareFailure() {
	s.env.OnActivity(s.acts.Prepare, mock.Anything, target).
		Return(domain.PortalInfo{}, errors.New("portal down"))

	s.env.ExecuteWorkflow(workflows.TargetWorkflow, workflows.TargetInput{Target: target, MaxPasses: 3})

	s.Error(s.env.GetWorkflowError())
}

func TestWorkflowIDs(t *testing.T) {
	require.Equal(t, "scrape-scott_county_ia", workflows.TargetWorkflowID(target))
	require.Equal(t, "scrape-scott_county_ia-layer-7", workflows.LayerWorkflowID(target, zoning))
}
