// Package backend implements the Backend controller (C9): message routing,
// the scene/view registries, and the single-front-end authorisation check
// spec.md §3/§4 describe as the process's top-level component.
package backend

import (
	"sync"

	"github.com/povbackend/tracebackend/internal/collab"
	"github.com/povbackend/tracebackend/internal/errs"
	"github.com/povbackend/tracebackend/internal/ids"
	"github.com/povbackend/tracebackend/internal/logging"
	"github.com/povbackend/tracebackend/internal/message"
	"github.com/povbackend/tracebackend/internal/optparse"
	"github.com/povbackend/tracebackend/internal/scenectl"
	"github.com/povbackend/tracebackend/internal/task"
	"github.com/povbackend/tracebackend/internal/viewctl"
)

// Collaborators bundles the factories Backend needs to build a new Scene
// or View's out-of-scope dependencies (spec.md §1).
type Collaborators struct {
	NewParser      func() collab.Parser
	NewBounder     func() collab.Bounder
	NewIntersector func() collab.Intersector
}

// Transport is the outbound contract Backend addresses per-scene/per-view
// replies through. It carries no inbound half: control messages reach
// Backend through Handle.
type Transport interface {
	Send(destination string, msg any) error
}

// transportSender adapts Transport's (destination, msg) shape to
// task.MessageSender's single-argument Send, binding one fixed
// destination address per Scene/View queue.
type transportSender struct {
	transport   Transport
	destination message.Address
}

func (s transportSender) Send(msg any) error {
	return s.transport.Send(string(s.destination), msg)
}

// Backend owns every live Scene and View, keyed by id, plus the
// scene<->view membership indices CloseScene's live-view check needs
// (spec.md §3: "closing a scene before all its views are closed fails").
type Backend struct {
	transport     Transport
	collaborators Collaborators
	authorised    message.Address
	logger        logging.Logger

	mu         sync.Mutex
	scenes     map[ids.SceneID]*scenectl.Scene
	views      map[ids.ViewID]*viewctl.View
	sceneViews map[ids.SceneID]map[ids.ViewID]struct{}
	viewScene  map[ids.ViewID]ids.SceneID
}

// New creates a Backend that only accepts control messages whose Source is
// authorisedFrontend (spec.md §7 kAuthorisationErr).
func New(transport Transport, collaborators Collaborators, authorisedFrontend message.Address) *Backend {
	return &Backend{
		transport:     transport,
		collaborators: collaborators,
		authorised:    authorisedFrontend,
		logger:        logging.Get().WithField("component", "backend"),
		scenes:        make(map[ids.SceneID]*scenectl.Scene),
		views:         make(map[ids.ViewID]*viewctl.View),
		sceneViews:    make(map[ids.SceneID]map[ids.ViewID]struct{}),
		viewScene:     make(map[ids.ViewID]ids.SceneID),
	}
}

// Handle routes one inbound control message to its handler and returns the
// reply to send back (Done/Failed, per spec.md §6.1).
func (b *Backend) Handle(msg message.Message) message.Message {
	if msg.Source != b.authorised {
		return message.Failed(msg.Class, msg.Destination, msg.Source, int(errs.Authorisation), "unauthorised front-end")
	}

	switch msg.Ident {
	case message.IdentCreateScene:
		return b.createScene(msg)
	case message.IdentCloseScene:
		return b.closeScene(msg)
	case message.IdentStartParser:
		return b.startParser(msg)
	case message.IdentStopParser:
		return b.stopParser(msg)
	case message.IdentPauseParser:
		return b.pauseParser(msg)
	case message.IdentResumeParser:
		return b.resumeParser(msg)
	case message.IdentCreateView:
		return b.createView(msg)
	case message.IdentCloseView:
		return b.closeView(msg)
	case message.IdentStartRender:
		return b.startRender(msg)
	case message.IdentStopRender:
		return b.stopRender(msg)
	case message.IdentPauseRender:
		return b.pauseRender(msg)
	case message.IdentResumeRender:
		return b.resumeRender(msg)
	case message.IdentReadFile:
		return b.readFile(msg)
	default:
		return message.Failed(msg.Class, msg.Destination, msg.Source, int(errs.InvalidIdentifier), "unrecognised identifier")
	}
}

func failed(msg message.Message, err error) message.Message {
	kind := errs.KindOf(err)
	return message.Failed(msg.Class, msg.Destination, msg.Source, int(kind), err.Error())
}

func (b *Backend) createScene(msg message.Message) message.Message {
	id := ids.NewSceneID()
	sender := transportSender{transport: b.transport, destination: msg.Source}
	scene := scenectl.New(id, msg.Source, msg.Destination, b.collaborators.NewParser(), b.collaborators.NewBounder(), sender)

	b.mu.Lock()
	b.scenes[id] = scene
	b.sceneViews[id] = make(map[ids.ViewID]struct{})
	b.mu.Unlock()

	go scene.Run()
	return message.Done(msg.Class, msg.Destination, msg.Source, map[string]any{"SceneId": string(id)})
}

func (b *Backend) lookupScene(raw any) (*scenectl.Scene, ids.SceneID, bool) {
	idStr, ok := raw.(string)
	if !ok {
		return nil, "", false
	}
	id := ids.SceneID(idStr)
	b.mu.Lock()
	defer b.mu.Unlock()
	scene, ok := b.scenes[id]
	return scene, id, ok
}

func (b *Backend) lookupView(raw any) (*viewctl.View, ids.ViewID, bool) {
	idStr, ok := raw.(string)
	if !ok {
		return nil, "", false
	}
	id := ids.ViewID(idStr)
	b.mu.Lock()
	defer b.mu.Unlock()
	view, ok := b.views[id]
	return view, id, ok
}

func (b *Backend) closeScene(msg message.Message) message.Message {
	scene, id, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	if scene.ViewCount() > 0 {
		return failed(msg, errs.New(errs.NotNow, "scene has live views"))
	}

	scene.Stop()
	b.mu.Lock()
	delete(b.scenes, id)
	delete(b.sceneViews, id)
	b.mu.Unlock()

	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) startParser(msg message.Message) message.Message {
	scene, _, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	opts, err := optparse.DecodeParserOptions(msg.Attributes)
	if err != nil {
		return failed(msg, errs.Wrap(errs.ParamErr, err, "invalid parser options"))
	}
	scene.StartParser(opts)
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) stopParser(msg message.Message) message.Message {
	scene, _, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	scene.StopParser()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) pauseParser(msg message.Message) message.Message {
	scene, _, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	scene.PauseParser()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) resumeParser(msg message.Message) message.Message {
	scene, _, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	scene.ResumeParser()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) createView(msg message.Message) message.Message {
	scene, sceneID, ok := b.lookupScene(msg.Attributes["SceneId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown SceneId"))
	}
	if err := scene.NewView(); err != nil {
		return failed(msg, err)
	}

	width, _ := msg.Attributes["Width"].(int)
	height, _ := msg.Attributes["Height"].(int)
	if width <= 0 {
		width = 160
	}
	if height <= 0 {
		height = 120
	}

	id := ids.NewViewID()
	sender := transportSender{transport: b.transport, destination: msg.Source}
	view := viewctl.New(id, sceneID, msg.Source, msg.Destination, width, height, b.collaborators.NewIntersector(), sender)

	b.mu.Lock()
	b.views[id] = view
	b.sceneViews[sceneID][id] = struct{}{}
	b.viewScene[id] = sceneID
	b.mu.Unlock()

	go view.Run()
	return message.Done(msg.Class, msg.Destination, msg.Source, map[string]any{"ViewId": string(id)})
}

func (b *Backend) closeView(msg message.Message) message.Message {
	view, id, ok := b.lookupView(msg.Attributes["ViewId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown ViewId"))
	}
	view.Stop()

	b.mu.Lock()
	sceneID := b.viewScene[id]
	delete(b.views, id)
	delete(b.viewScene, id)
	if views, ok := b.sceneViews[sceneID]; ok {
		delete(views, id)
	}
	scene := b.scenes[sceneID]
	b.mu.Unlock()

	if scene != nil {
		scene.ReleaseView()
	}
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) startRender(msg message.Message) message.Message {
	view, _, ok := b.lookupView(msg.Attributes["ViewId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown ViewId"))
	}
	opts, err := optparse.DecodeRenderOptions(msg.Attributes)
	if err != nil {
		return failed(msg, errs.Wrap(errs.ParamErr, err, "invalid render options"))
	}
	view.StartRender(opts)
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) stopRender(msg message.Message) message.Message {
	view, _, ok := b.lookupView(msg.Attributes["ViewId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown ViewId"))
	}
	view.StopRender()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) pauseRender(msg message.Message) message.Message {
	view, _, ok := b.lookupView(msg.Attributes["ViewId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown ViewId"))
	}
	view.PauseRender()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

func (b *Backend) resumeRender(msg message.Message) message.Message {
	view, _, ok := b.lookupView(msg.Attributes["ViewId"])
	if !ok {
		return failed(msg, errs.New(errs.InvalidIdentifier, "unknown ViewId"))
	}
	view.ResumeRender()
	return message.Done(msg.Class, msg.Destination, msg.Source, nil)
}

// readFile mirrors the real backend's inbound FileAccess/ReadFile stub: the
// backend never serves file contents to the front-end on this direction
// (FindFile/ReadFile are RPCs the backend itself issues, answered by the
// front-end's file resolver, see internal/message §6.6), so an inbound
// ReadFile request always fails CannotHandleRequest once authorisation has
// already passed in Handle.
func (b *Backend) readFile(msg message.Message) message.Message {
	return failed(msg, errs.New(errs.CannotHandleRequest, "backend does not serve ReadFile requests"))
}

// Shutdown stops every live view then every live scene, joining their
// control threads (spec.md §4.1's graceful-stop shape applied process-wide).
func (b *Backend) Shutdown() {
	b.mu.Lock()
	views := make([]*viewctl.View, 0, len(b.views))
	for _, v := range b.views {
		views = append(views, v)
	}
	scenes := make([]*scenectl.Scene, 0, len(b.scenes))
	for _, s := range b.scenes {
		scenes = append(scenes, s)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, v := range views {
		wg.Add(1)
		go func(v *viewctl.View) { defer wg.Done(); v.Stop() }(v)
	}
	wg.Wait()
	for _, s := range scenes {
		wg.Add(1)
		go func(s *scenectl.Scene) { defer wg.Done(); s.Stop() }(s)
	}
	wg.Wait()
}

// task.MessageSender is satisfied by transportSender; referenced here only
// to document the dependency explicitly for readers of this package.
var _ task.MessageSender = transportSender{}
