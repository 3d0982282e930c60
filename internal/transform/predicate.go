package transform

import (
	"strconv"

	"github.com/banshee-data/incident-explorer/internal/dataset"
)

// Predicate decides whether a record is kept.
type Predicate func(dataset.Record) bool

// Membership is a set of selected string values, such as a widget selection.
type Membership interface {
	Contains(v string) bool
}

// And keeps a record only when every predicate keeps it. No predicates keeps
// everything.
func And(preds ...Predicate) Predicate {
	return func(r dataset.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// MemberOf keeps records whose field, rendered as a string, is in set.
func MemberOf(set Membership, field func(dataset.Record) string) Predicate {
	return func(r dataset.Record) bool { return set.Contains(field(r)) }
}

// Field accessors in the string encoding the widgets use. Years and months
// are unpadded decimal.
func DistrictOf(r dataset.Record) string     { return r.District }
func NeighborhoodOf(r dataset.Record) string { return r.Neighborhood }
func YearOf(r dataset.Record) string         { return strconv.Itoa(r.Year) }
func MonthOf(r dataset.Record) string        { return strconv.Itoa(r.Month) }

// Filter is the membership part of the widget state. A nil set places no
// constraint on its field.
type Filter struct {
	Districts     Membership
	Neighborhoods Membership
	Years         Membership
	Months        Membership
}

// Predicate composes the four membership checks.
func (f Filter) Predicate() Predicate {
	var preds []Predicate
	add := func(set Membership, field func(dataset.Record) string) {
		if set != nil {
			preds = append(preds, MemberOf(set, field))
		}
	}
	add(f.Districts, DistrictOf)
	add(f.Neighborhoods, NeighborhoodOf)
	add(f.Years, YearOf)
	add(f.Months, MonthOf)
	return And(preds...)
}

// Count returns how many records of ds keep accepts.
func Count(ds *dataset.Dataset, keep Predicate) int {
	n := 0
	for _, r := range ds.All() {
		if keep(r) {
			n++
		}
	}
	return n
}
