package enums

// AccountStatus gates whether a user may act on the platform.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusBanned AccountStatus = "BANNED"
)

var accountStatuses = set[AccountStatus]{
	AccountStatusActive,
	AccountStatusBanned,
}

// IsValid reports whether the value is a known AccountStatus.
func (a AccountStatus) IsValid() bool {
	return accountStatuses.has(a)
}

// ParseAccountStatus converts raw input into an AccountStatus.
func ParseAccountStatus(value string) (AccountStatus, error) {
	return accountStatuses.parse("account status", value)
}
