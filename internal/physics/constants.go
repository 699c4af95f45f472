// Package physics holds the constants and closed-form relations used to turn
// fitted slopes and intercepts into device and material parameters.
package physics

// Physical constants as used by the lab's analyses.
const (
	ElementaryCharge    = 1.602e-19    // C
	VacuumPermittivity  = 8.854e-12    // F/m
	SiliconPermittivity = 11.7         // relative
	Boltzmann           = 1.380649e-23 // J/K
	Avogadro            = 6.022e23     // 1/mol
)

// Measurement defaults.
const (
	// ReferenceVoltage is the lock-in excitation across the impedance, V.
	ReferenceVoltage = 0.01
	// InvC2RelativeFloor and InvC2AbsoluteFloor bound the uncertainty
	// assigned to 1/C² points.
	InvC2RelativeFloor = 0.02
	InvC2AbsoluteFloor = 1e16 // 1/F²
)
