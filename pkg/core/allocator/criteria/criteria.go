// Package criteria holds the standard eligibility constraints for allocation
package criteria

import "github.com/jakechorley/volunteer-rota/pkg/core/allocator"

// Default returns the standard constraints in priority order
func Default() []allocator.Constraint {
	return []allocator.Constraint{
		NewAvailabilityCriterion(),
		NewBlackoutCriterion(),
		NewOverlapCriterion(),
		NewPeriodCapCriterion(),
		NewMinGapCriterion(),
	}
}
