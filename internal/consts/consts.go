package consts

const (
	CHARGE    = 1.60219e-19   // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)
	KboQ      = 8.617087e-5   // Boltzmann constant over charge (V/K)

	EPS0   = 8.85418e-12 // Vacuum permittivity (F/m)
	EPSSI  = 1.03594e-10 // Silicon permittivity (F/m)
	EPSOX  = 3.453133e-11
	EPSRSI = 11.7 // Silicon relative permittivity
	EPSROX = 3.9  // SiO2 relative permittivity

	TNOM = 300.15 // Default nominal temperature, 27C (K)
)
