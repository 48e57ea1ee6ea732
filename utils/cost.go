package utils

// Fixed rates in cents per hour.
const (
	CPUCostPerCore   = 10 // $0.10/core/hour
	RAMCostPerGB     = 5  // $0.05/GB/hour
	StorageCostPerGB = 1  // $0.01/GB/hour
)

// CalculateCost returns the hourly rate in cents for the given shape.
// Callers clamp inputs to the template ceiling first.
func CalculateCost(cpuCores, ramGB int) int {
	return cpuCores*CPUCostPerCore + ramGB*RAMCostPerGB
}

// MinInt clamps a requested value against a ceiling; the result never exceeds
// either argument.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
