// Package ids generates the scene/view identifiers CreateScene/CreateView
// replies carry (spec.md §3 Scene/View lifecycles). The spec never fixes
// their representation — only that they key a map — so this supplements
// the distilled spec with collision-resistant ids instead of a
// process-global counter.
package ids

import "github.com/google/uuid"

// SceneID and ViewID are distinct types so a scene id can never be passed
// where a view id is expected, or vice versa.
type SceneID string
type ViewID string

func NewSceneID() SceneID { return SceneID(uuid.NewString()) }
func NewViewID() ViewID   { return ViewID(uuid.NewString()) }
