// Package feast computes movable feasts of the Gregorian calendar.
package feast

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"almanac/internal/model"
)

// Anchor names a movable feast usable as the zero point of a
// relative-anchor template.
type Anchor string

const (
	AnchorCarnivalMonday  Anchor = "carnival_monday"
	AnchorCarnivalTuesday Anchor = "carnival_tuesday"
	AnchorAshWednesday    Anchor = "ash_wednesday"
	AnchorGoodFriday      Anchor = "good_friday"
	AnchorEaster          Anchor = "easter"
	AnchorEasterMonday    Anchor = "easter_monday"
	AnchorAscension       Anchor = "ascension"
	AnchorPentecost       Anchor = "pentecost"
	AnchorWhitMonday      Anchor = "whit_monday"
	AnchorCorpusChristi   Anchor = "corpus_christi"
)

// offsets holds each anchor's distance in days from Easter Sunday.
// A new anchor only needs an entry here.
var offsets = map[Anchor]int{
	AnchorCarnivalMonday:  -48,
	AnchorCarnivalTuesday: -47,
	AnchorAshWednesday:    -46, // 40 fast days plus the 6 Sundays of Lent
	AnchorGoodFriday:      -2,
	AnchorEaster:          0,
	AnchorEasterMonday:    1,
	AnchorAscension:       39,
	AnchorPentecost:       49,
	AnchorWhitMonday:      50,
	AnchorCorpusChristi:   60,
}

// ErrUnknownAnchor is returned for anchor names without an offset.
var ErrUnknownAnchor = errors.New("unknown anchor")

// Easter returns Easter Sunday of the given year using the anonymous
// Gregorian (Meeus/Jones/Butcher) algorithm on the proleptic Gregorian
// calendar. Division is floored so years before 1 also land between
// March 22 and April 25; dates before 1583 are historically meaningless.
func Easter(year int) model.Date {
	a := mod(year, 19)
	b := floorDiv(year, 100)
	c := mod(year, 100)
	d := floorDiv(b, 4)
	e := mod(b, 4)
	f := floorDiv(b+8, 25)
	g := floorDiv(b-f+1, 3)
	h := mod(19*a+b-d-g+15, 30)
	i := c / 4
	k := c % 4
	l := mod(32+2*e+2*i-h-k, 7)
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return model.Date{Year: year, Month: time.Month(month), Day: day}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

// AshWednesday returns the first day of Lent.
func AshWednesday(year int) model.Date {
	return Easter(year).AddDays(offsets[AnchorAshWednesday])
}

// Resolve returns the date of anchor in year.
func Resolve(anchor Anchor, year int) (model.Date, error) {
	off, ok := offsets[anchor]
	if !ok {
		return model.Date{}, fmt.Errorf("%w: %q", ErrUnknownAnchor, string(anchor))
	}
	return Easter(year).AddDays(off), nil
}

// ParseAnchor normalizes a user supplied anchor name.
func ParseAnchor(s string) (Anchor, error) {
	a := Anchor(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := offsets[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAnchor, s)
	}
	return a, nil
}

// Offset reports the anchor's distance from Easter Sunday.
func Offset(anchor Anchor) (int, bool) {
	off, ok := offsets[anchor]
	return off, ok
}

// Anchors lists the known anchors in calendar order.
func Anchors() []Anchor {
	out := make([]Anchor, 0, len(offsets))
	for a := range offsets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return offsets[out[i]] < offsets[out[j]]
	})
	return out
}

// Table resolves every known anchor for year.
func Table(year int) map[Anchor]model.Date {
	easter := Easter(year)
	out := make(map[Anchor]model.Date, len(offsets))
	for a, off := range offsets {
		out[a] = easter.AddDays(off)
	}
	return out
}
