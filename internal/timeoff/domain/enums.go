package domain

// PolicyCategory classifies what kind of time off a policy covers.
type PolicyCategory string

const (
	CategoryVacation    PolicyCategory = "VACATION"
	CategorySick        PolicyCategory = "SICK"
	CategoryPersonal    PolicyCategory = "PERSONAL"
	CategoryBereavement PolicyCategory = "BEREAVEMENT"
	CategoryParental    PolicyCategory = "PARENTAL"
	CategoryOther       PolicyCategory = "OTHER"
)

// PolicyType discriminates the settings union.
type PolicyType string

const (
	PolicyUnlimited PolicyType = "UNLIMITED"
	PolicyAccrual   PolicyType = "ACCRUAL"
)

// AccrualMethod discriminates accrual settings.
type AccrualMethod string

const (
	AccrualTime        AccrualMethod = "TIME"
	AccrualHoursWorked AccrualMethod = "HOURS_WORKED"
)

// AccrualFrequency is the period granularity of time-based accrual.
type AccrualFrequency string

const (
	FrequencyDaily   AccrualFrequency = "DAILY"
	FrequencyMonthly AccrualFrequency = "MONTHLY"
	FrequencyYearly  AccrualFrequency = "YEARLY"
)

// AccrualTiming says whether the grant lands at the start or end of a period.
type AccrualTiming string

const (
	TimingStartOfPeriod AccrualTiming = "START_OF_PERIOD"
	TimingEndOfPeriod   AccrualTiming = "END_OF_PERIOD"
)

// DisplayUnit is a presentation hint only; all arithmetic is in minutes.
type DisplayUnit string

const (
	UnitMinutes DisplayUnit = "MINUTES"
	UnitHours   DisplayUnit = "HOURS"
	UnitDays    DisplayUnit = "DAYS"
)

// ProrationMethod controls partial-period accrual for new assignments.
type ProrationMethod string

const (
	ProrationDaysActive ProrationMethod = "DAYS_ACTIVE"
	ProrationNone       ProrationMethod = "NONE"
)

// RequestStatus is the request workflow state.
type RequestStatus string

const (
	RequestDraft     RequestStatus = "DRAFT"
	RequestSubmitted RequestStatus = "SUBMITTED"
	RequestApproved  RequestStatus = "APPROVED"
	RequestDenied    RequestStatus = "DENIED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// LedgerEntryType is the kind of ledger posting.
type LedgerEntryType string

const (
	EntryAccrual     LedgerEntryType = "ACCRUAL"
	EntryHold        LedgerEntryType = "HOLD"
	EntryHoldRelease LedgerEntryType = "HOLD_RELEASE"
	EntryUsage       LedgerEntryType = "USAGE"
	EntryAdjustment  LedgerEntryType = "ADJUSTMENT"
	EntryExpiration  LedgerEntryType = "EXPIRATION"
	EntryCarryover   LedgerEntryType = "CARRYOVER"
)

// LedgerSourceType says what kind of actor produced a ledger entry.
type LedgerSourceType string

const (
	SourceRequest LedgerSourceType = "REQUEST"
	SourcePayroll LedgerSourceType = "PAYROLL"
	SourceAdmin   LedgerSourceType = "ADMIN"
	SourceSystem  LedgerSourceType = "SYSTEM"
)

// AuditEntityType names the entity an audit record is about.
type AuditEntityType string

const (
	AuditPolicy        AuditEntityType = "POLICY"
	AuditPolicyVersion AuditEntityType = "POLICY_VERSION"
	AuditRequest       AuditEntityType = "REQUEST"
	AuditAssignment    AuditEntityType = "ASSIGNMENT"
	AuditHoliday       AuditEntityType = "HOLIDAY"
	AuditAdjustment    AuditEntityType = "ADJUSTMENT"
	AuditAccrual       AuditEntityType = "ACCRUAL"
)

// AuditAction is the operation an audit record describes.
type AuditAction string

const (
	ActionCreate  AuditAction = "CREATE"
	ActionUpdate  AuditAction = "UPDATE"
	ActionDelete  AuditAction = "DELETE"
	ActionApprove AuditAction = "APPROVE"
	ActionDeny    AuditAction = "DENY"
	ActionCancel  AuditAction = "CANCEL"
	ActionSubmit  AuditAction = "SUBMIT"
)

// CanTransition reports whether a request may move from its current
// status to the target status. The workflow is a strict state machine:
// only SUBMITTED requests can be decided, and decisions are terminal.
func (s RequestStatus) CanTransition(target RequestStatus) bool {
	switch target {
	case RequestSubmitted:
		return s == RequestDraft
	case RequestApproved, RequestDenied, RequestCancelled:
		return s == RequestSubmitted
	default:
		return false
	}
}
