package email

const (
	subjectLeadNewFmt     = "New lead from %s: %s"
	subjectLeadUpdatedFmt = "Lead updated (%s): %s"
)
