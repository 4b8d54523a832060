// Package credits implements the time-based credit economy: reservations at
// submit time, cost and reward computation, and settlement at completion
// time. All money math goes through shopspring/decimal with 4-decimal
// banker's rounding so repeated settlements cannot accumulate float dust.
package credits

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/data"
)

type Config struct {
	CostPerSecond     float64
	MinCost           float64
	MaxCost           float64
	RewardRatio       float64
	DefaultJobTimeout int
	InitialBalance    float64
}

// DefaultConfig returns the production defaults: 0.1 credits per second,
// cost clamped to [0.05, 25.0], 85% of the actual cost rewarded to the
// worker owner, and a 100-credit starting grant.
func DefaultConfig() Config {
	return Config{
		CostPerSecond:     0.1,
		MinCost:           0.05,
		MaxCost:           25.0,
		RewardRatio:       0.85,
		DefaultJobTimeout: 60,
		InitialBalance:    100.0,
	}
}

func (c Config) Validate() error {
	if c.CostPerSecond <= 0 {
		return fmt.Errorf("cost per second must be positive, got %v", c.CostPerSecond)
	}
	if c.MinCost <= 0 {
		return fmt.Errorf("min cost must be positive, got %v", c.MinCost)
	}
	if c.MaxCost < c.MinCost {
		return fmt.Errorf("max cost %v cannot be below min cost %v", c.MaxCost, c.MinCost)
	}
	if c.RewardRatio < 0 || c.RewardRatio > 1 {
		return fmt.Errorf("reward ratio must be within [0, 1], got %v", c.RewardRatio)
	}
	if c.DefaultJobTimeout <= 0 {
		return fmt.Errorf("default job timeout must be positive, got %v", c.DefaultJobTimeout)
	}
	if c.InitialBalance < 0 {
		return fmt.Errorf("initial balance cannot be negative, got %v", c.InitialBalance)
	}
	return nil
}

// Settlement summarizes one settle pass for logging and metrics.
type Settlement struct {
	Reserved float64
	Actual   float64
	Refund   float64
	Reward   float64
}

type Engine struct {
	config Config
	models *data.Models
}

func NewEngine(config Config, models *data.Models) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating credits config: %w", err)
	}
	if models == nil {
		return nil, fmt.Errorf("models cannot be nil")
	}
	return &Engine{config: config, models: models}, nil
}

func (e *Engine) Config() Config {
	return e.config
}

// roundClamp rounds to 4 decimals (banker's) and clamps into
// [MinCost, MaxCost].
func (e *Engine) roundClamp(v decimal.Decimal) float64 {
	rounded := v.RoundBank(4)

	minCost := decimal.NewFromFloat(e.config.MinCost)
	maxCost := decimal.NewFromFloat(e.config.MaxCost)
	if rounded.LessThan(minCost) {
		rounded = minCost
	}
	if rounded.GreaterThan(maxCost) {
		rounded = maxCost
	}

	f, _ := rounded.Float64()
	return f
}

// MaxReserve returns the credits to hold for a job with the given timeout.
// Non-positive timeouts fall back to the configured default.
func (e *Engine) MaxReserve(timeoutSeconds int) float64 {
	if timeoutSeconds <= 0 {
		timeoutSeconds = e.config.DefaultJobTimeout
	}
	reserve := decimal.NewFromInt(int64(timeoutSeconds)).Mul(decimal.NewFromFloat(e.config.CostPerSecond))
	return e.roundClamp(reserve)
}

// ComputeCost prices an actual execution. A missing or negative duration is
// billed at the floor.
func (e *Engine) ComputeCost(durationSeconds *float64) float64 {
	if durationSeconds == nil || *durationSeconds < 0 {
		return e.config.MinCost
	}
	cost := decimal.NewFromFloat(*durationSeconds).Mul(decimal.NewFromFloat(e.config.CostPerSecond))
	return e.roundClamp(cost)
}

// ComputeReward returns the owner's share of an actual cost, rounded to 4
// decimals. Unlike cost it is not clamped.
func (e *Engine) ComputeReward(actualCost float64) float64 {
	if actualCost <= 0 {
		return 0
	}
	reward := decimal.NewFromFloat(actualCost).Mul(decimal.NewFromFloat(e.config.RewardRatio)).RoundBank(4)
	f, _ := reward.Float64()
	return f
}

// EnsureUser creates the account with the starting grant on first reference
// and returns the current balance.
func (e *Engine) EnsureUser(ctx context.Context, userID string) (float64, error) {
	return e.models.Credits.Ensure(ctx, userID, e.config.InitialBalance)
}

// Balance reads the user's balance. First reference creates the account, so
// a brand-new submitter sees the starting grant rather than a 404.
func (e *Engine) Balance(ctx context.Context, userID string) (float64, error) {
	return e.EnsureUser(ctx, userID)
}

// Reserve holds amount from the user's balance. Returns false when the
// balance does not cover it.
func (e *Engine) Reserve(ctx context.Context, userID string, amount float64) (bool, error) {
	return e.models.Credits.Deduct(ctx, userID, amount)
}

// Refund returns previously reserved credits, e.g. when job creation fails
// after the reservation succeeded.
func (e *Engine) Refund(ctx context.Context, userID string, amount float64) error {
	return e.models.Credits.Credit(ctx, userID, amount)
}

// Settle closes the economics of one finished job: refund the submitter the
// unused part of the reservation and reward the worker owner their share of
// the actual cost. The reservation is read from the job row, so settlement
// observes exactly what was debited at submission. A failed refund or reward
// is logged and never reverts the other side.
func (e *Engine) Settle(ctx context.Context, jobID, ownerID string, durationSeconds *float64) (*Settlement, error) {
	job, err := e.models.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("reading job %s for settlement: %w", jobID, err)
	}

	reserved := job.Cost
	if reserved <= 0 {
		reserved = e.config.MaxCost
	}
	actual := e.ComputeCost(durationSeconds)

	refundDec := decimal.NewFromFloat(reserved).Sub(decimal.NewFromFloat(actual))
	if refundDec.IsNegative() {
		refundDec = decimal.Zero
	}
	refund, _ := refundDec.Float64()
	reward := e.ComputeReward(actual)

	if refund > 0 && job.UserID != "" {
		if creditErr := e.models.Credits.Credit(ctx, job.UserID, refund); creditErr != nil {
			log.Ctx(ctx).Errorf("refunding %.4f to submitter %s for job %s: %v", refund, job.UserID, jobID, creditErr)
		}
	}

	if reward > 0 && ownerID != "" {
		if creditErr := e.models.Credits.Credit(ctx, ownerID, reward); creditErr != nil {
			log.Ctx(ctx).Errorf("rewarding %.4f to owner %s for job %s: %v", reward, ownerID, jobID, creditErr)
		}
		if job.WorkerID != nil {
			if earnErr := e.models.Workers.AddEarnings(ctx, e.models.DBConnectionPool, *job.WorkerID, reward); earnErr != nil {
				log.Ctx(ctx).Errorf("recording earnings of worker %s for job %s: %v", *job.WorkerID, jobID, earnErr)
			}
		}
	}

	if persistErr := e.models.Jobs.RecordSettlement(ctx, jobID, durationSeconds, actual); persistErr != nil {
		log.Ctx(ctx).Errorf("persisting settlement of job %s: %v", jobID, persistErr)
	}

	settlement := &Settlement{Reserved: reserved, Actual: actual, Refund: refund, Reward: reward}
	log.Ctx(ctx).Infof("💸 settled job %s: reserved=%.4f actual=%.4f refund=%.4f reward=%.4f owner=%s",
		jobID, settlement.Reserved, settlement.Actual, settlement.Refund, settlement.Reward, ownerID)

	return settlement, nil
}
