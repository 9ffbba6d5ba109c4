package photon

import (
	"context"
	"math"
	"testing"

	"github.com/povbackend/tracebackend/internal/collab/fake"
	"github.com/povbackend/tracebackend/internal/geom"
)

func testLight() *Light {
	return &Light{
		Name:      "sun",
		Kind:      LightPoint,
		Position:  geom.New(0, 10, 0),
		Direction: geom.New(0, -1, 0),
	}
}

func testTarget() Target {
	return Target{Name: "ball", Center: geom.New(0, 0, 0), Radius: 2, ReflectionFlag: true}
}

func TestEstimateAdjustsSurfaceSeparation(t *testing.T) {
	p := NewPipeline(&fake.Intersector{}, Settings{RequestedSurfaceCount: 1000}, []*Light{testLight()}, []Target{testTarget()})
	if err := p.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if p.Combos[0].EstimatedPhotons <= 0 {
		t.Errorf("EstimatedPhotons = %v, want > 0", p.Combos[0].EstimatedPhotons)
	}
	if p.SurfaceSeparation() <= 0 {
		t.Errorf("SurfaceSeparation = %v, want > 0", p.SurfaceSeparation())
	}
}

func TestStrategiseProducesWorkUnits(t *testing.T) {
	p := NewPipeline(&fake.Intersector{}, Settings{RequestedSurfaceCount: 100}, []*Light{testLight()}, []Target{testTarget()})
	if err := p.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if err := p.Strategise(nil); err != nil {
		t.Fatalf("Strategise: %v", err)
	}
	if len(p.units) == 0 {
		t.Fatal("expected at least one work unit")
	}
	for _, u := range p.units {
		if u.ThetaEnd <= u.ThetaStart {
			t.Errorf("unit has non-positive range: %+v", u)
		}
	}
}

func TestShootAndMergePopulatesSurfaceMap(t *testing.T) {
	intersector := &fake.Intersector{Color: geom.New(1, 1, 1)}
	p := NewPipeline(intersector, Settings{RequestedSurfaceCount: 200, Workers: 3, AutoStopPercent: 2.0}, []*Light{testLight()}, []Target{testTarget()})
	if err := p.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if err := p.Strategise(nil); err != nil {
		t.Fatalf("Strategise: %v", err)
	}
	if err := p.Shoot(context.Background(), nil); err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if err := p.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(p.Surface.Samples) == 0 {
		t.Fatal("expected merged surface map to contain samples")
	}
	if intersector.Calls() == 0 {
		t.Errorf("expected Intersector to be called at least once")
	}
}

func TestAttenuationSpotZeroBehindLight(t *testing.T) {
	l := &Light{Kind: LightSpot, Direction: geom.New(0, -1, 0), Coeff: 2}
	a := Attenuation(l, geom.New(0, 1, 0))
	if a != 0 {
		t.Errorf("Attenuation behind spot = %v, want 0", a)
	}
}

func TestAttenuationCylinderFallsOffWithDistance(t *testing.T) {
	l := &Light{Kind: LightCylinder, Direction: geom.New(0, 1, 0), FalloffRadius: 4, Coeff: 1}
	near := Attenuation(l, geom.New(1, 1, 0))
	far := Attenuation(l, geom.New(3, 1, 0))
	if !(near > far) {
		t.Errorf("expected attenuation to decrease with distance: near=%v far=%v", near, far)
	}
	beyond := Attenuation(l, geom.New(5, 1, 0))
	if beyond != 0 {
		t.Errorf("Attenuation beyond falloff radius = %v, want 0", beyond)
	}
}

func TestCubicSplineEndpoints(t *testing.T) {
	if got := cubicSpline(10, 2, 1); got != 1 {
		t.Errorf("cubicSpline inside inner radius = %v, want 1", got)
	}
	if got := cubicSpline(10, 2, 10); math.Abs(got) > 1e-9 {
		t.Errorf("cubicSpline at outer edge = %v, want 0", got)
	}
}
