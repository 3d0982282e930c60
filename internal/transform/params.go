package transform

import (
	"fmt"
	"strings"

	"github.com/banshee-data/incident-explorer/internal/dataset"
)

// Dropdown choices offered by the page controls.
var (
	GroupByChoices = []string{"Districts", "Neighborhoods"}
	XAxisChoices   = []string{"Month", "Year"}
	YAxisChoices   = []string{"Incidents", "Vehicles"}
)

// GroupByColumn maps a group-by choice to its column: "Districts" becomes
// district_name.
func GroupByColumn(choice string) (string, error) {
	col := strings.ToLower(strings.TrimSuffix(choice, "s")) + "_name"
	if col != dataset.ColDistrict && col != dataset.ColNeighborhood {
		return "", fmt.Errorf("%w: group by choice %q", ErrUnknownColumn, choice)
	}
	return col, nil
}

// TimeUnitColumn maps the x-axis choice to year_month or year.
func TimeUnitColumn(choice string) string {
	if choice == "Month" {
		return dataset.ColYearMonth
	}
	return dataset.ColYear
}

// ValueColumn maps the y-axis choice to n_incidents or n_vehicles.
func ValueColumn(choice string) string {
	if choice == "Incidents" {
		return ColIncidents
	}
	return ColVehicles
}
