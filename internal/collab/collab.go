// Package collab names the external collaborator contracts spec.md §1
// declares out of scope: the ray-surface intersection kernel, shading and
// material evaluation, the scene parser, image-file codecs, the message
// bus transport, and platform timer/delay hooks. The task pipeline, tile
// dispatcher, photon pipeline, radiosity driver and trace driver are all
// written against these interfaces; nothing in this module provides a real
// implementation of them. internal/collab/fake provides minimal in-memory
// fakes used only by tests.
package collab

import (
	"context"

	"github.com/povbackend/tracebackend/internal/geom"
)

// Intersector is the ray-surface intersection kernel. Trace, photon and
// radiosity workers call Intersect to get a shaded radiance contribution;
// the intersection math and acceleration structure (BSP/slab hierarchy)
// are entirely the collaborator's concern.
type Intersector interface {
	Intersect(ctx context.Context, ray geom.Ray, maxTraceLevel int, adcBailout float64) (geom.Vec3, error)
}

// Shader evaluates a hit's material response; folded into Intersector's
// result in most embeddings, exposed separately for photon-style queries
// that need a BSDF sample instead of a final color.
type Shader interface {
	Sample(ctx context.Context, point, normal, incoming geom.Vec3) (direction geom.Vec3, weight geom.Vec3, ok bool)
}

// ParseResult is what the Parser collaborator reports back to Scene's
// ParserTask once it finishes turning SDL text into SceneData.
type ParseResult struct {
	ObjectCount      int
	LightCount       int
	CameraCount      int
	ParsedMaxTraceLevel int
	ParsedAdcBailout    float64
}

// Parser consumes a root scene file plus injected Declare/Clock variables
// and populates the immutable-after-parsing SceneData (spec.md §3).
type Parser interface {
	Parse(ctx context.Context, inputFile string, declares map[string]any, clock float64) (ParseResult, error)
}

// BoundingMethod selects the acceleration structure Bounder builds, per
// spec.md §6.2 BoundingMethod (1 = slab hierarchy, 2 = BSP).
type BoundingMethod int

const (
	BoundingSlabHierarchy BoundingMethod = 1
	BoundingBSP           BoundingMethod = 2
)

// Bounder builds the acceleration structure over the parsed object list.
type Bounder interface {
	Build(ctx context.Context, method BoundingMethod, threshold int) error
}

// ImageCodec writes out a rendered frame; real implementations speak PNG,
// EXR, etc. Out of scope per spec.md §1.
type ImageCodec interface {
	Encode(ctx context.Context, w ImageWriter, width, height int, pixels []geom.Vec3) error
}

// ImageWriter is the minimal sink an ImageCodec writes bytes to.
type ImageWriter interface {
	Write(p []byte) (int, error)
}

// Transport moves Message envelopes (internal/message) between the backend
// and a connected front-end. internal/task.MessageSender is the narrow
// slice of this a Queue needs to emit a single outbound message; Transport
// is the fuller duplex contract, including the inbound half and connection
// lifecycle. internal/backend declares its own Send-only Transport and does
// not use this one.
type Transport interface {
	Send(destination string, msg any) error
	Receive(ctx context.Context) (source string, msg any, err error)
	Close() error
}

// Timer is the platform-specific delay/measurement hook spec.md §1 calls
// out as external (real/CPU elapsed time, platform-init on task start).
type Timer interface {
	Now() Timestamp
	Sleep(d Timestamp)
}

// Timestamp is an opaque monotonic instant; real implementations wrap
// time.Time/clock_gettime.
type Timestamp int64
