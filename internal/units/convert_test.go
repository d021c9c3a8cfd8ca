package units

import "testing"

func TestSplitPackages(t *testing.T) {
	tests := []struct {
		name      string
		qty       float64
		pkgAmount float64
		packages  int64
		remainder float64
	}{
		{"exact multiple", 1000, 500, 2, 0},
		{"with remainder", 1200, 500, 2, 200},
		{"less than one package", 300, 500, 0, 300},
		{"zero quantity", 0, 500, 0, 0},
		{"zero package amount", 750, 0, 0, 750},
		{"negative package amount", 750, -1, 0, 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPackages(tt.qty, tt.pkgAmount)
			if got.Packages != tt.packages {
				t.Errorf("packages = %d, want %d", got.Packages, tt.packages)
			}
			if got.Remainder != tt.remainder {
				t.Errorf("remainder = %v, want %v", got.Remainder, tt.remainder)
			}
		})
	}
}

func TestPackagesToBase(t *testing.T) {
	if got := PackagesToBase(3, 500); got != 1500 {
		t.Errorf("PackagesToBase(3, 500) = %v, want 1500", got)
	}
	// No package conversion factor: quantity passes through untouched.
	if got := PackagesToBase(3, 0); got != 3 {
		t.Errorf("PackagesToBase(3, 0) = %v, want 3", got)
	}
}
