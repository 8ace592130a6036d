package orbit

import "math"

// elementEpsilon guards against divide-by-near-zero in degenerate
// (circular / equatorial) orbits.
const elementEpsilon = 1e-9

// Elements are the classical orbital elements derived from the current
// state vector, per spec.md §4.7.
type Elements struct {
	SpecificAngularMomentum float64
	Eccentricity            float64
	InclinationRad          float64
	RAANRad                 float64
	ArgPeriapsisRad         float64
	TrueAnomalyRad          float64
	PeriapsisRadius         float64
	ApoapsisRadius          float64
	PeriapsisAltitude       float64
	ApoapsisAltitude        float64
	// PeriodSeconds is only meaningful when Eccentricity < 1; it is 0 for
	// parabolic/hyperbolic trajectories.
	PeriodSeconds float64
	SemiMajorAxis float64
}

// Summary computes the current orbital elements from the propagator's
// state vector and primary body.
func (p *Propagator) Summary() Elements {
	r := p.State.Position
	v := p.State.Velocity
	mu := p.Body.Mu

	rNorm := r.Norm()
	vNorm := v.Norm()

	h := r.Cross(v)
	hNorm := h.Norm()

	var eVec Vec3
	if mu > 0 && rNorm > 0 {
		eVec = v.Cross(h).Scale(1 / mu).Sub(r.Scale(1 / rNorm))
	}

	ecc := eVec.Norm()

	specificEnergy := vNorm*vNorm/2 - mu/rNorm

	var semiMajor float64
	if math.Abs(specificEnergy) > elementEpsilon {
		semiMajor = -mu / (2 * specificEnergy)
	}

	inclination := 0.0
	if hNorm > elementEpsilon {
		inclination = math.Acos(clamp(h[2]/hNorm, -1, 1))
	}

	node := Vec3{-h[1], h[0], 0}
	nodeNorm := node.Norm()

	raan := 0.0
	if nodeNorm > elementEpsilon {
		raan = math.Acos(clamp(node[0]/nodeNorm, -1, 1))
		if node[1] < 0 {
			raan = 2*math.Pi - raan
		}
	}

	argPeriapsis := 0.0
	if nodeNorm > elementEpsilon && ecc > elementEpsilon {
		argPeriapsis = math.Acos(clamp(node.Dot(eVec)/(nodeNorm*ecc), -1, 1))
		if eVec[2] < 0 {
			argPeriapsis = 2*math.Pi - argPeriapsis
		}
	}

	trueAnomaly := 0.0
	if ecc > elementEpsilon && rNorm > elementEpsilon {
		trueAnomaly = math.Acos(clamp(eVec.Dot(r)/(ecc*rNorm), -1, 1))
		if r.Dot(v) < 0 {
			trueAnomaly = 2*math.Pi - trueAnomaly
		}
	}

	periapsis := semiMajor * (1 - ecc)
	apoapsis := semiMajor * (1 + ecc)

	period := 0.0
	if ecc < 1 && mu > 0 && semiMajor > 0 {
		period = 2 * math.Pi * math.Sqrt(semiMajor*semiMajor*semiMajor/mu)
	}

	return Elements{
		SpecificAngularMomentum: hNorm,
		Eccentricity:            ecc,
		InclinationRad:          inclination,
		RAANRad:                 raan,
		ArgPeriapsisRad:         argPeriapsis,
		TrueAnomalyRad:          trueAnomaly,
		PeriapsisRadius:         periapsis,
		ApoapsisRadius:          apoapsis,
		PeriapsisAltitude:       periapsis - p.Body.Radius,
		ApoapsisAltitude:        apoapsis - p.Body.Radius,
		PeriodSeconds:           period,
		SemiMajorAxis:           semiMajor,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
