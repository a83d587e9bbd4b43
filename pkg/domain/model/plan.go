package model

import (
	"github.com/dominikbraun/graph"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

// PlannedJob is a job scheduled within a stage. SameStageNeeds lists the
// dependencies that run in the same stage; earlier-stage needs are already
// satisfied by stage ordering.
type PlannedJob struct {
	Name           string
	Spec           *JobSpec
	SameStageNeeds []string
}

// PlanStage is one stage with its jobs in execution order
type PlanStage struct {
	Name string
	Jobs []PlannedJob
}

// Plan is a deterministic execution order for a pipeline: stages in
// declared order, jobs within a stage in topological order of their needs
// with lexicographic tie-breaking.
type Plan struct {
	Stages []PlanStage
}

// JobCount returns the total number of planned jobs
func (p *Plan) JobCount() int {
	var n int
	for _, stage := range p.Stages {
		n += len(stage.Jobs)
	}
	return n
}

// BuildPlan orders the configuration's jobs for execution. It assumes
// structural validation has passed and reports needs cycles as errors.
func (c *Config) BuildPlan() (*Plan, error) {
	byStage := map[string][]string{}
	for _, name := range c.VisibleJobs() {
		job := c.Jobs[name]
		if job == nil {
			continue
		}
		byStage[job.Stage] = append(byStage[job.Stage], name)
	}

	plan := &Plan{}
	for _, stage := range c.Stages {
		jobs, ok := byStage[stage]
		if !ok {
			continue
		}

		ordered, err := c.orderStageJobs(stage, jobs)
		if err != nil {
			return nil, err
		}

		plan.Stages = append(plan.Stages, PlanStage{Name: stage, Jobs: ordered})
	}

	return plan, nil
}

// orderStageJobs builds a directed graph of same-stage needs and returns
// a stable topological order
func (c *Config) orderStageJobs(stage string, jobs []string) ([]PlannedJob, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	inStage := map[string]bool{}
	for _, name := range jobs {
		inStage[name] = true
		if err := g.AddVertex(name); err != nil {
			return nil, goerr.Wrap(err, "failed to add job to stage graph", goerr.V("job", name))
		}
	}

	for _, name := range jobs {
		added := map[string]bool{}
		for _, need := range c.Jobs[name].Needs {
			if !inStage[need] {
				continue // earlier stage, satisfied by stage ordering
			}
			if added[need] {
				continue // repeated needs entry, edge already present
			}
			added[need] = true
			if err := g.AddEdge(need, name); err != nil {
				return nil, goerr.Wrap(types.ErrInvalidConfig, "needs cycle detected",
					goerr.V("stage", stage), goerr.V("job", name), goerr.V("needs", need))
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, goerr.Wrap(err, "failed to order stage jobs", goerr.V("stage", stage))
	}

	planned := make([]PlannedJob, 0, len(order))
	for _, name := range order {
		job := c.Jobs[name]
		var sameStage []string
		seen := map[string]bool{}
		for _, need := range job.Needs {
			if inStage[need] && !seen[need] {
				seen[need] = true
				sameStage = append(sameStage, need)
			}
		}
		planned = append(planned, PlannedJob{Name: name, Spec: job, SameStageNeeds: sameStage})
	}

	return planned, nil
}
