package executor

import (
	"context"
	"time"

	"tradecast/internal/faults"
	"tradecast/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// estimateGas is the shared estimation path: validate, build calldata, price.
func estimateGas(ctx context.Context, e Executor, estimator *GasEstimator, req *models.ExecutionRequest) (*models.GasEstimate, error) {
	if result := e.ValidateRequest(req); !result.Valid {
		return nil, faults.New(faults.ValidationFailed, "invalid request").WithFields(result.Errors...)
	}

	data, err := e.BuildCallData(req)
	if err != nil {
		return nil, faults.Wrap(faults.ValidationFailed, err, "failed to build call data")
	}

	return estimator.Estimate(ctx, req, data)
}

// execute is the shared execution path: re-validate, build, price, submit.
// A missing submitter is a reported failure, never a silent no-op.
func execute(ctx context.Context, e Executor, estimator *GasEstimator, submitter Submitter, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	if result := e.ValidateRequest(req); !result.Valid {
		return nil, faults.New(faults.ValidationFailed, "invalid request").WithFields(result.Errors...)
	}

	data, err := e.BuildCallData(req)
	if err != nil {
		return nil, faults.Wrap(faults.ValidationFailed, err, "failed to build call data")
	}

	if submitter == nil {
		return &models.ExecutionResult{
			Status:       "failed",
			ErrorMessage: "no transaction submitter configured",
			Timestamp:    time.Now().UTC(),
		}, faults.New(faults.ExecutionFailed, "no transaction submitter configured")
	}

	estimate, err := estimator.Estimate(ctx, req, data)
	if err != nil {
		return nil, err
	}

	result, err := submitter.Submit(ctx, BuiltCall{
		To:       common.HexToAddress(req.Contract),
		Data:     data,
		GasLimit: estimate.GasLimit,
		GasPrice: estimate.GasPrice,
		Network:  req.Network,
	})
	if err != nil {
		return &models.ExecutionResult{
			Status:       "failed",
			ErrorMessage: err.Error(),
			Timestamp:    time.Now().UTC(),
		}, faults.Wrap(faults.ExecutionFailed, err, "submission failed")
	}

	// The effective price outlives the submission: EXECUTED confirmations
	// persist it.
	if result.GasPrice == "" && estimate.GasPrice != nil {
		result.GasPrice = estimate.GasPrice.String()
	}

	return result, nil
}
