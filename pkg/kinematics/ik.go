package kinematics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolverConfig tunes the damped least-squares IK solver.
type SolverConfig struct {
	// MaxIterations bounds a single solve attempt.
	MaxIterations int `json:"max_iterations"`

	// Damping is the lambda term of the damped normal equations.
	Damping float64 `json:"damping"`

	// Tolerance is the weighted residual (mm-equivalent) below which a
	// solve converges. LooseTolerance is substituted near singularities.
	Tolerance      float64 `json:"tolerance"`
	LooseTolerance float64 `json:"loose_tolerance"`

	// ManipThreshold is the Jacobian manipulability below which the
	// solver considers itself near a singularity.
	ManipThreshold float64 `json:"manip_threshold"`

	// OrientationWeight scales degrees of orientation error against
	// millimetres of position error in the combined norm.
	OrientationWeight float64 `json:"orientation_weight"`

	// MaxDepth bounds recursive path subdivision.
	MaxDepth int `json:"max_depth"`

	// SweepRangeDeg and SweepSteps define the J1 seed sweep used for
	// recovery: SweepSteps alternate seeds spread over +-SweepRangeDeg.
	// Calibration-dependent, so configured rather than hard-coded.
	SweepRangeDeg float64 `json:"sweep_range_deg"`
	SweepSteps    int     `json:"sweep_steps"`

	// Mask selects which pose components must be matched.
	Mask AxisMask `json:"-"`
}

// DefaultSolverConfig returns the tuning used on the real arm.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxIterations:     100,
		Damping:           0.05,
		Tolerance:         0.1,
		LooseTolerance:    0.5,
		ManipThreshold:    1e-3,
		OrientationWeight: 1.0,
		MaxDepth:          4,
		SweepRangeDeg:     45.0,
		SweepSteps:        6,
		Mask:              FullMask(),
	}
}

// IKResult is the outcome of one Solve call. On failure Angles carries the
// best-effort configuration reached; the caller decides what to do with it.
type IKResult struct {
	Converged  bool
	Angles     JointAngles
	Iterations int
	Residual   float64
	Recoveries int
	Reason     string
}

// Solver is a damped least-squares IK solver over a Model. It is the single
// IK implementation shared by every caller; the planner batches it off the
// real-time path. A Solver is safe for concurrent use.
type Solver struct {
	model *Model
	cfg   SolverConfig
}

// NewSolver builds a solver for the given model and tuning.
func NewSolver(model *Model, cfg SolverConfig) *Solver {
	if cfg.MaxIterations <= 0 {
		cfg = DefaultSolverConfig()
	}
	return &Solver{model: model, cfg: cfg}
}

// Model returns the solver's kinematic model.
func (s *Solver) Model() *Model { return s.model }

// poseError returns the 6-vector error from current to target: position in
// millimetres, orientation as a rotation vector in degrees. Masked
// components are zeroed.
func poseError(target, current frame, mask AxisMask) [6]float64 {
	var e [6]float64
	e[0] = (target.t.X - current.t.X) * 1000.0
	e[1] = (target.t.Y - current.t.Y) * 1000.0
	e[2] = (target.t.Z - current.t.Z) * 1000.0

	// R_err = R_target * R_current^T, expressed as axis*angle.
	var rerr [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rerr[i][j] = target.r[i][0]*current.r[j][0] +
				target.r[i][1]*current.r[j][1] +
				target.r[i][2]*current.r[j][2]
		}
	}
	trace := rerr[0][0] + rerr[1][1] + rerr[2][2]
	c := (trace - 1.0) / 2.0
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	angle := math.Acos(c)
	const r2d = 180.0 / math.Pi
	if angle > 1e-9 {
		scale := angle / (2.0 * math.Sin(angle)) * r2d
		e[3] = (rerr[2][1] - rerr[1][2]) * scale
		e[4] = (rerr[0][2] - rerr[2][0]) * scale
		e[5] = (rerr[1][0] - rerr[0][1]) * scale
	}

	for i := range e {
		if !mask[i] {
			e[i] = 0
		}
	}
	return e
}

// weightedNorm combines position and orientation error into one scalar.
func (s *Solver) weightedNorm(e [6]float64) float64 {
	w := s.cfg.OrientationWeight
	return math.Sqrt(e[0]*e[0] + e[1]*e[1] + e[2]*e[2] +
		w*w*(e[3]*e[3]+e[4]*e[4]+e[5]*e[5]))
}

// jacobian computes the numerical Jacobian of the pose error at q by
// central differences. Returned as a 6x6 dense matrix, rows masked like
// the error vector.
func (s *Solver) jacobian(target frame, q JointAngles) *mat.Dense {
	const h = 0.05 // degrees
	j := mat.NewDense(6, NumJoints, nil)
	for col := 0; col < NumJoints; col++ {
		qp, qm := q, q
		qp[col] += h
		qm[col] -= h
		ep := poseError(target, s.model.fkFrame(qp), s.cfg.Mask)
		em := poseError(target, s.model.fkFrame(qm), s.cfg.Mask)
		for row := 0; row < 6; row++ {
			j.Set(row, col, (ep[row]-em[row])/(2.0*h))
		}
	}
	return j
}

// manipulability is |det J|, a proximity-to-singularity measure. The
// Jacobian here is in mixed mm/deg units, so the threshold in SolverConfig
// is calibrated against those units.
func manipulability(j *mat.Dense) float64 {
	return math.Abs(mat.Det(j))
}

// iterate runs damped least-squares from seed toward target. Returns the
// best configuration reached, iterations used, final residual and whether
// the residual fell below tol.
func (s *Solver) iterate(target frame, seed JointAngles, tol float64) (JointAngles, int, float64, bool) {
	q := seed
	best := seed
	bestRes := math.Inf(1)

	lambda := s.cfg.Damping
	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		e := poseError(target, s.model.fkFrame(q), s.cfg.Mask)
		res := s.weightedNorm(e)
		if res < bestRes {
			bestRes = res
			best = q
		}
		if res < tol {
			return q, iter, res, true
		}

		j := s.jacobian(target, q)

		// Damped normal equations: (J^T J + lambda^2 I) dq = J^T e.
		// J is the derivative of the error, so the Gauss-Newton step
		// descends by subtracting dq.
		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		for d := 0; d < NumJoints; d++ {
			jtj.Set(d, d, jtj.At(d, d)+lambda*lambda)
		}
		ev := mat.NewVecDense(6, e[:])
		var jte mat.VecDense
		jte.MulVec(j.T(), ev)

		var dq mat.VecDense
		if err := dq.SolveVec(&jtj, &jte); err != nil {
			// Singular normal matrix even with damping; bail out
			// with the best configuration found so far.
			return best, iter, bestRes, false
		}

		for i := 0; i < NumJoints; i++ {
			q[i] -= dq.AtVec(i)
		}
		q = unwrapToward(q, seed)
		q = s.model.ClampToLimits(q)
	}
	return best, s.cfg.MaxIterations, bestRes, false
}

// adaptiveTolerance loosens the convergence target near singularities so
// difficult regions still converge, at reduced precision.
func (s *Solver) adaptiveTolerance(target frame, seed JointAngles) float64 {
	j := s.jacobian(target, seed)
	manip := manipulability(j)
	if manip < s.cfg.ManipThreshold {
		return s.cfg.LooseTolerance
	}
	return s.cfg.Tolerance
}

// solveSegment attempts target from seed, bisecting the path from `from`
// when a direct solve fails. Returns the converged configuration and the
// iterations consumed across all attempts.
func (s *Solver) solveSegment(from, target Pose, seed JointAngles, depth int, tol float64) (JointAngles, int, float64, bool) {
	tf := poseToFrame(target)
	q, iters, res, ok := s.iterate(tf, seed, tol)
	if ok {
		return q, iters, res, true
	}
	if depth >= s.cfg.MaxDepth {
		return q, iters, res, false
	}

	// Solve the midpoint first; a converged midpoint is a far better
	// seed for the second half than the original configuration.
	mid := InterpolatePose(from, target, 0.5)
	qMid, itL, resL, okL := s.solveSegment(from, mid, seed, depth+1, tol)
	if !okL {
		return qMid, iters + itL, resL, false
	}
	qEnd, itR, resR, okR := s.solveSegment(mid, target, qMid, depth+1, tol)
	return qEnd, iters + itL + itR, resR, okR
}

// Solve runs IK for target starting from seed. On direct failure the path
// from the seed's pose is subdivided; if that also fails the solve is
// retried from alternate seeds sweeping J1 across the configured range.
// Solve never returns an error: a Failed result carries the best-effort
// configuration and the caller decides whether to abort the move.
func (s *Solver) Solve(target Pose, seed JointAngles) IKResult {
	from := s.model.ForwardKinematics(seed)
	tol := s.adaptiveTolerance(poseToFrame(target), seed)

	q, iters, res, ok := s.solveSegment(from, target, seed, 0, tol)
	if ok {
		return IKResult{Converged: true, Angles: q, Iterations: iters, Residual: res}
	}

	// Seed-sweep recovery: hold J2-J6 and retry from alternate J1
	// positions. The first converging seed wins.
	total := iters
	for _, alt := range s.sweepSeeds(seed) {
		altFrom := s.model.ForwardKinematics(alt)
		q2, it2, res2, ok2 := s.solveSegment(altFrom, target, alt, 0, tol)
		total += it2
		if ok2 {
			return IKResult{
				Converged:  true,
				Angles:     q2,
				Iterations: total,
				Residual:   res2,
				Recoveries: 1,
			}
		}
	}

	return IKResult{
		Converged:  false,
		Angles:     q,
		Iterations: total,
		Residual:   res,
		Reason:     "did not converge after subdivision and seed sweep",
	}
}

// sweepSeeds generates alternate seed configurations by offsetting J1
// symmetrically across the sweep range, nearest offsets first.
func (s *Solver) sweepSeeds(seed JointAngles) []JointAngles {
	if s.cfg.SweepSteps <= 0 || s.cfg.SweepRangeDeg <= 0 {
		return nil
	}
	step := s.cfg.SweepRangeDeg / float64(s.cfg.SweepSteps)
	seeds := make([]JointAngles, 0, 2*s.cfg.SweepSteps)
	for k := 1; k <= s.cfg.SweepSteps; k++ {
		for _, sign := range []float64{1, -1} {
			alt := seed
			alt[0] = s.model.Limits[0].Clamp(seed[0] + sign*step*float64(k))
			if alt[0] != seed[0] {
				seeds = append(seeds, alt)
			}
		}
	}
	return seeds
}
