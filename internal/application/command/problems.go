package command

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
)

// CreateBlockCommand groups three problems into a block.
type CreateBlockCommand struct {
	ProblemIDs []int64
	Type       *problem.BlockType
	Path       string
}

// CreateProblem adds a problem to the olymp. Names are unique per olymp.
func (e *Engine) CreateProblem(ctx context.Context, oc olymp.Context, name string) (*problem.Problem, error) {
	var res *problem.Problem
	err := e.runInOlymp(ctx, "CreateProblem", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		if err := o.RequireRegistration("CreateProblem"); err != nil {
			return err
		}
		pr, err := problem.NewProblem(o.ID, name)
		if err != nil {
			return err
		}
		if err := tx.Problems().CreateProblem(ctx, pr); err != nil {
			return err
		}
		res = pr
		return nil
	})
	return res, err
}

// CreateBlock adds a block of three problems of the olymp. A typed block is
// unique per olymp.
func (e *Engine) CreateBlock(ctx context.Context, oc olymp.Context, cmd CreateBlockCommand) (*problem.Block, error) {
	var res *problem.Block
	err := e.runInOlymp(ctx, "CreateBlock", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		if err := o.RequireRegistration("CreateBlock"); err != nil {
			return err
		}
		b, err := problem.NewBlock(o.ID, cmd.ProblemIDs, cmd.Type, cmd.Path)
		if err != nil {
			return err
		}
		for _, id := range b.Problems {
			if _, err := problemOf(ctx, tx, o, id); err != nil {
				return err
			}
		}
		if err := tx.Problems().CreateBlock(ctx, b); err != nil {
			return err
		}
		res = b
		return nil
	})
	return res, err
}
