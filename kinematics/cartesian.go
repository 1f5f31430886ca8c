// Package kinematics adapts the teacher's standalone/kinematics package:
// it validates a requested position against configured axis limits before
// the G-code front door ever turns it into a planner.Move. Spec.md's
// Non-goals exclude non-Cartesian kinematics, so only the Cartesian (1:1)
// transform is implemented here.
package kinematics

import (
	"errors"

	"gopper/planner"
)

// AxisLimits is one axis's travel range, in millimeters.
type AxisLimits struct {
	Min float64
	Max float64
}

// Cartesian is the identity kinematics transform: machine position in mm
// equals commanded XYZE position in mm, one step-per-mm scale per axis
// aside. CheckLimits is the only nontrivial operation it performs.
type Cartesian struct {
	Limits [planner.NAxes]AxisLimits
}

// NewCartesian returns a Cartesian transform bounded by limits, requiring
// at least a nonzero travel range on X, Y, and Z.
func NewCartesian(limits [planner.NAxes]AxisLimits) (*Cartesian, error) {
	for _, axis := range []int{planner.AxisX, planner.AxisY, planner.AxisZ} {
		if limits[axis].Max <= limits[axis].Min {
			return nil, errors.New("kinematics: axis travel range not configured")
		}
	}
	return &Cartesian{Limits: limits}, nil
}

// ToMachine converts a commanded XYZE position to machine-space
// position. For Cartesian kinematics this is the identity map.
func (k *Cartesian) ToMachine(pos [planner.NAxes]float64) [planner.NAxes]float64 {
	return pos
}

// CheckLimits reports an error if pos falls outside any configured axis
// travel range. The extruder axis is never limit-checked here - cold
// extrude and flow limits are a thermal/planner concern, not a
// kinematic one.
func (k *Cartesian) CheckLimits(pos [planner.NAxes]float64) error {
	for _, axis := range []int{planner.AxisX, planner.AxisY, planner.AxisZ} {
		if pos[axis] < k.Limits[axis].Min || pos[axis] > k.Limits[axis].Max {
			return errors.New("kinematics: position out of configured travel limits")
		}
	}
	return nil
}
