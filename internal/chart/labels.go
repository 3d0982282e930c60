package chart

// Labels maps table columns to the human labels shown on axes, legends and
// hover text.
var Labels = map[string]string{
	"utm_coordinate_x":  "UTM Coordinate X",
	"utm_coordinate_y":  "UTM Coordinate Y",
	"district_name":     "District",
	"neighborhood_name": "Neighborhood",
	"n_vehicles":        "Number of Vehicles",
	"n_victims":         "Number of Victims",
	"n_incidents":       "Number of Incidents",
	"datetime":          "Date / Time",
	"year_month":        "Year / Month",
	"year":              "Year",
	"month":             "Month",
}

// Label returns the label for col from overrides, then Labels, then col itself.
func Label(col string, overrides map[string]string) string {
	if l, ok := overrides[col]; ok {
		return l
	}
	if l, ok := Labels[col]; ok {
		return l
	}
	return col
}
