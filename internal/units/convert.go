// Package units holds the pure quantity arithmetic shared by the ledger,
// stock policy, and shopping list code.
package units

import "math"

// Breakdown expresses a base-unit quantity as whole packages plus a
// remainder in base units.
type Breakdown struct {
	Packages  int64   `json:"packages"`
	Remainder float64 `json:"remainder"`
}

// SplitPackages converts qty base units into whole packages of pkgAmount
// base units each. A pkgAmount of zero or less means the item has no usable
// package, and the whole quantity stays in base units.
func SplitPackages(qty, pkgAmount float64) Breakdown {
	if pkgAmount <= 0 {
		return Breakdown{Packages: 0, Remainder: qty}
	}
	packages := math.Floor(qty / pkgAmount)
	return Breakdown{
		Packages:  int64(packages),
		Remainder: qty - packages*pkgAmount,
	}
}

// PackagesToBase converts a purchased package count into base units.
func PackagesToBase(packages, pkgAmount float64) float64 {
	if pkgAmount <= 0 {
		return packages
	}
	return packages * pkgAmount
}
