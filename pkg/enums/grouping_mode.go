package enums

// GroupingMode selects the strategy the grouping service applies.
type GroupingMode string

const (
	GroupingModeWeight GroupingMode = "WEIGHT"
	GroupingModeRoom   GroupingMode = "ROOM"
)

var groupingModes = set[GroupingMode]{
	GroupingModeWeight,
	GroupingModeRoom,
}

// IsValid reports whether the value is a known GroupingMode.
func (g GroupingMode) IsValid() bool {
	return groupingModes.has(g)
}

// ParseGroupingMode converts raw input into a GroupingMode.
func ParseGroupingMode(value string) (GroupingMode, error) {
	return groupingModes.parse("grouping mode", value)
}
