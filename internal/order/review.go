package order

// reviewApprovalLimit stands in for an external fraud/amount-risk check:
// totals at or above it fail automated review and need a resubmission or an
// admin override.
const reviewApprovalLimit = 100.0

// approveOnReview is the automated review decision. It is a pure function of
// the order; the comparison is strictly less-than, so an order of exactly the
// limit is rejected.
func approveOnReview(o *Order) bool {
	return o.TotalAmount < reviewApprovalLimit
}
