package domain

// RefundPercent maps hours left until departure to a refund percentage.
// Both 24 and 6 hours fall into the 50% tier; negative values (departed) get 0.
func RefundPercent(hoursBeforeDeparture float64) int {
	switch {
	case hoursBeforeDeparture > 24:
		return 90
	case hoursBeforeDeparture >= 6:
		return 50
	default:
		return 0
	}
}

// Refund returns the refunded part of totalFare for the given percentage.
func Refund(totalFare float64, percent int) float64 {
	return totalFare * float64(percent) / 100
}
