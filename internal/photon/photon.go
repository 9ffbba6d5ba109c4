// Package photon implements the four-stage photon mapping pipeline:
// estimate expected photon counts, strategise per-(light,target) work
// units, shoot them across N worker tasks, then sort/merge the per-worker
// maps into a single kd-tree. The actual ray-surface intersection is an
// external collaborator (internal/collab.Intersector); this package only
// drives how many photons are shot, in what directions, and how the
// results are merged.
package photon

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/povbackend/tracebackend/internal/collab"
	"github.com/povbackend/tracebackend/internal/geom"
	"github.com/povbackend/tracebackend/internal/metrics"
)

// LightKind selects which angular enumeration and attenuation model a
// Light uses (spec.md §4.4, §4.4.a).
type LightKind int

const (
	LightPoint LightKind = iota
	LightSpot
	LightCylinder
	LightParallel
	LightArea
)

// Light is the subset of a parsed light source the photon pipeline needs:
// position/direction, the falloff geometry for spot/cylinder attenuation,
// and area-light jitter sampling grid.
type Light struct {
	Name           string
	Kind           LightKind
	Position       geom.Vec3
	Direction      geom.Vec3 // normalized, spot/cylinder/parallel axis
	FalloffAngle   float64   // maxtheta, radians
	FalloffRadius  float64   // spot: outer cone soft-edge radius; cylinder: falloff distance
	InnerRadius    float64   // optional inner radius for cubic_spline smoothing
	Coeff          float64   // spot cosθ exponent / cylinder falloff exponent
	AreaSamplesX   int
	AreaSamplesY   int
	AreaExtent     geom.Vec3 // half-extent of the area light's jitter box
	RequestPercent float64   // share of RequestedSurfaceCount this light asks for
}

// Target is a candidate receiving object: a bounding sphere is enough to
// estimate the solid angle a photon-shooting cone must cover.
type Target struct {
	Name           string
	Center         geom.Vec3
	Radius         float64
	ReflectionFlag bool
	RefractionFlag bool
}

// LightTargetCombo is one (light, target) pair with the derived angular
// range the shooter iterates over.
type LightTargetCombo struct {
	Light            *Light
	Target           Target
	MaxTheta         float64 // half-angle of the cone covering Target from Light
	EstimatedPhotons float64
}

// PhotonShootingUnit is one contiguous θ-range of a combo, to be processed
// by exactly one shooter worker (work stealing via a shared mutex-guarded
// queue).
type PhotonShootingUnit struct {
	Combo      *LightTargetCombo
	ThetaStart float64
	ThetaEnd   float64
}

// Sample is one recorded photon hit.
type Sample struct {
	Position geom.Vec3
	Power    geom.Vec3
	Incoming geom.Vec3
}

// Settings controls the shoot stage (spec.md §4.4's photonSettings).
type Settings struct {
	Jitter                float64
	AutoStopPercent       float64 // break out of a θ-ring once exceeded with no hit
	RequestedSurfaceCount int
	MaxTraceLevel         int
	AdcBailout            float64
	Workers               int
}

// Map is a worker's append-only photon store plus (after merge) its
// median-split kd-tree over Positions.
type Map struct {
	Samples []Sample
	tree    []int // kd-tree node indices into Samples, built by buildKDTree
}

// Pipeline drives the four stages. It is not itself a task.Task: Scene/View
// wire each stage method into separate task.Task entries around Sync
// barriers, per spec.md §4.4.
type Pipeline struct {
	Intersector collab.Intersector
	Settings    Settings

	Combos []LightTargetCombo

	mu    sync.Mutex
	units []PhotonShootingUnit

	workerMaps []*Map
	Surface    Map
	Media      Map

	surfaceSeparation float64
}

// NewPipeline constructs a Pipeline for the given lights/targets.
func NewPipeline(intersector collab.Intersector, settings Settings, lights []*Light, targets []Target) *Pipeline {
	p := &Pipeline{Intersector: intersector, Settings: settings, surfaceSeparation: 1.0}
	for _, l := range lights {
		for _, t := range targets {
			if !t.ReflectionFlag && !t.RefractionFlag {
				continue
			}
			p.Combos = append(p.Combos, LightTargetCombo{Light: l, Target: t})
		}
	}
	return p
}

// Estimate walks the scene tree (here: the combo list) and computes an
// expected photon count per combo, adjusting surfaceSeparation so the
// aggregate estimate matches RequestedSurfaceCount (spec.md §4.4 step 1).
// This does no ray tracing.
func (p *Pipeline) Estimate() error {
	var total float64
	for i := range p.Combos {
		c := &p.Combos[i]
		dist := c.Target.Center.Subtract(c.Light.Position).Length()
		if dist <= 0 {
			c.MaxTheta = math.Pi
		} else {
			c.MaxTheta = math.Asin(math.Min(1, c.Target.Radius/dist))
		}
		solidAngleFraction := (1 - math.Cos(c.MaxTheta)) / 2
		c.EstimatedPhotons = solidAngleFraction * float64(p.Settings.RequestedSurfaceCount)
		total += c.EstimatedPhotons
	}
	if total > 0 && p.Settings.RequestedSurfaceCount > 0 {
		p.surfaceSeparation = math.Sqrt(total / float64(p.Settings.RequestedSurfaceCount))
	}
	return nil
}

// SurfaceSeparation returns the value Estimate adjusted (test/inspection
// hook; the real driver feeds this into the gather kernel, out of scope).
func (p *Pipeline) SurfaceSeparation() float64 { return p.surfaceSeparation }

// Strategise enumerates (light, target) pairs again and asks each combo's
// light to emit one or more work units covering contiguous angular ranges
// (spec.md §4.4 step 2). Non-parallel cylinder lights without a suitable
// strategy are reported via warn.
func (p *Pipeline) Strategise(warn func(string)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units = p.units[:0]
	const unitsPerCombo = 4
	for i := range p.Combos {
		c := &p.Combos[i]
		if c.Light.Kind == LightCylinder && warn != nil && c.Light.FalloffRadius <= 0 {
			warn("cylinder light " + c.Light.Name + " has no falloff radius; photon density may be skewed")
		}
		if c.MaxTheta <= 0 {
			continue
		}
		step := c.MaxTheta / unitsPerCombo
		for u := 0; u < unitsPerCombo; u++ {
			p.units = append(p.units, PhotonShootingUnit{
				Combo:      c,
				ThetaStart: float64(u) * step,
				ThetaEnd:   float64(u+1) * step,
			})
		}
	}
	return nil
}

// popUnit pops the next work unit under the shared mutex (work stealing).
func (p *Pipeline) popUnit() (PhotonShootingUnit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.units) == 0 {
		return PhotonShootingUnit{}, false
	}
	u := p.units[0]
	p.units = p.units[1:]
	return u, true
}

// Shoot runs the N-worker shoot stage. Each worker owns a private Map;
// only Merge observes them afterwards (spec.md §5's "Photon per-worker
// maps are fully private" guarantee).
func (p *Pipeline) Shoot(ctx context.Context, cooperate func() error) error {
	n := p.Settings.Workers
	if n < 1 {
		n = 1
	}
	p.workerMaps = make([]*Map, n)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < n; w++ {
		idx := w
		g.Go(func() error {
			m := &Map{}
			p.workerMaps[idx] = m
			return p.shootWorker(gctx, m, cooperate)
		})
	}
	return g.Wait()
}

func (p *Pipeline) shootWorker(ctx context.Context, m *Map, cooperate func() error) error {
	const dTheta = 0.05
	for {
		unit, ok := p.popUnit()
		if !ok {
			return nil
		}
		hitAny := false
		for theta := unit.ThetaStart; theta < unit.ThetaEnd; theta += dTheta {
			if cooperate != nil {
				if err := cooperate(); err != nil {
					return err
				}
			}
			sinTheta := math.Sin(theta)
			dPhi := dTheta
			if unit.Combo.Light.Kind != LightParallel && sinTheta > 1e-6 {
				dPhi = dTheta / sinTheta
			} else if unit.Combo.Light.Radius() > 0 {
				dPhi = dTheta / unit.Combo.Light.Radius()
			}
			ringHit := false
			for phi := 0.0; phi < 2*math.Pi; phi += dPhi {
				dir := sphericalDirection(unit.Combo.Light.Direction, theta, phi, p.Settings.Jitter)
				attenuation := Attenuation(unit.Combo.Light, dir)
				if attenuation <= 0 {
					continue
				}
				ray := geom.NewRay(unit.Combo.Light.Position, dir)
				color, err := p.Intersector.Intersect(ctx, ray, p.Settings.MaxTraceLevel, p.Settings.AdcBailout)
				if err != nil {
					return err
				}
				if color.IsZero() {
					continue
				}
				m.Samples = append(m.Samples, Sample{
					Position: ray.At(1),
					Power:    color.Multiply(attenuation),
					Incoming: dir,
				})
				metrics.PhotonsShotTotal.Inc()
				ringHit = true
				hitAny = true
			}
			if hitAny && !ringHit && theta > p.Settings.AutoStopPercent*unit.ThetaEnd {
				break
			}
		}
	}
}

func sphericalDirection(axis geom.Vec3, theta, phi, jitter float64) geom.Vec3 {
	jTheta := theta
	jPhi := phi
	if jitter > 0 {
		jTheta += (pseudoRand(theta, phi) - 0.5) * jitter * 0.01
		jPhi += (pseudoRand(phi, theta) - 0.5) * jitter * 0.01
	}
	x := math.Sin(jTheta) * math.Cos(jPhi)
	y := math.Sin(jTheta) * math.Sin(jPhi)
	z := math.Cos(jTheta)
	local := geom.New(x, y, z)
	return alignToAxis(local, axis).Normalize()
}

// alignToAxis rotates a direction defined in a canonical frame (pole = +Z)
// onto an orthonormal basis built around axis, so sphericalDirection's
// (theta, phi) pair points relative to the light's own axis rather than
// the world Z axis.
func alignToAxis(local, axis geom.Vec3) geom.Vec3 {
	if axis.IsZero() {
		return local
	}
	w := axis.Normalize()
	ref := geom.New(0, 1, 0)
	if math.Abs(w.Dot(ref)) > 0.99 {
		ref = geom.New(1, 0, 0)
	}
	u := ref.Cross(w).Normalize()
	v := w.Cross(u)
	return u.Multiply(local.X).Add(v.Multiply(local.Y)).Add(w.Multiply(local.Z))
}

// pseudoRand is a cheap deterministic hash-based jitter source so photon
// directions are reproducible for a given (theta, phi) without importing
// a PRNG library for what is, here, test-grade jitter only.
func pseudoRand(a, b float64) float64 {
	v := math.Sin(a*12.9898+b*78.233) * 43758.5453
	return v - math.Floor(v)
}

// Radius returns the falloff radius of a cylinder light, for when dPhi needs
// a length scale instead of sinθ; every other Kind, area lights included,
// gets 0.
func (l *Light) Radius() float64 {
	if l.Kind == LightCylinder {
		return l.FalloffRadius
	}
	return 0
}

// Attenuation implements spec.md §4.4.a for spot and cylinder lights; all
// other kinds are unattenuated.
func Attenuation(l *Light, direction geom.Vec3) float64 {
	switch l.Kind {
	case LightSpot:
		cosTheta := direction.Normalize().Dot(l.Direction.Normalize())
		if cosTheta <= 0 {
			return 0
		}
		a := math.Pow(cosTheta, l.Coeff)
		if l.FalloffRadius > 0 {
			a *= cubicSpline(l.FalloffRadius, l.InnerRadius, cosTheta)
		}
		return a
	case LightCylinder:
		proj := direction.Subtract(l.Direction.Normalize().Multiply(direction.Dot(l.Direction.Normalize())))
		length := proj.Length()
		if l.FalloffRadius <= 0 || length >= l.FalloffRadius {
			return 0
		}
		a := math.Pow(1-length/l.FalloffRadius, l.Coeff)
		if l.InnerRadius > 0 {
			a *= cubicSpline(l.FalloffRadius, l.InnerRadius, length)
		}
		return a
	default:
		return 1
	}
}

// cubicSpline smooths the transition between inner and outer radius the
// way POV-Ray's falloff/radius soft edge does: a Hermite ease between 0
// and 1 as x moves from inner to outer.
func cubicSpline(outer, inner, x float64) float64 {
	if outer <= inner {
		return 1
	}
	t := (x - inner) / (outer - inner)
	if t <= 0 {
		return 1
	}
	if t >= 1 {
		return 0
	}
	return 1 - (3*t*t - 2*t*t*t)
}

// Merge combines the per-worker maps into the global Surface map and
// builds a naive median-split kd-tree over it (spec.md §4.4 step 4).
// Media photon merging follows the same shape and is omitted here since
// this deployment has no participating media collaborator to populate it.
func (p *Pipeline) Merge() error {
	p.Surface.Samples = p.Surface.Samples[:0]
	for _, m := range p.workerMaps {
		if m == nil {
			continue
		}
		p.Surface.Samples = append(p.Surface.Samples, m.Samples...)
	}
	p.Surface.tree = buildKDTree(p.Surface.Samples)
	return nil
}

// buildKDTree returns a median-split index order over samples (alternating
// axis per depth), the traversal order a real gather kernel would walk.
func buildKDTree(samples []Sample) []int {
	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	var build func(lo, hi, depth int)
	build = func(lo, hi, depth int) {
		if hi-lo <= 1 {
			return
		}
		axis := depth % 3
		mid := (lo + hi) / 2
		partitionByAxis(idx[lo:hi], samples, axis, mid-lo)
		build(lo, mid, depth+1)
		build(mid+1, hi, depth+1)
	}
	build(0, len(idx), 0)
	return idx
}

// partitionByAxis does a simple selection-based median partition (nth
// element) of idx around position k using samples[axis] as the key; O(n^2)
// worst case, acceptable for the modest per-worker photon counts this
// merge step handles in this deployment.
func partitionByAxis(idx []int, samples []Sample, axis, k int) {
	key := func(i int) float64 {
		switch axis {
		case 0:
			return samples[i].Position.X
		case 1:
			return samples[i].Position.Y
		default:
			return samples[i].Position.Z
		}
	}
	for i := range idx {
		minJ := i
		for j := i + 1; j < len(idx); j++ {
			if key(idx[j]) < key(idx[minJ]) {
				minJ = j
			}
		}
		idx[i], idx[minJ] = idx[minJ], idx[i]
		if i == k {
			return
		}
	}
}
